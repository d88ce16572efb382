package consistency

import (
	"fmt"
	"slices"
	"strings"

	"harmony/internal/compare"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/relations"
	"harmony/internal/similarity"
	"harmony/internal/textutil"
)

// Check names a validation rule.
type Check string

const (
	CheckSeries       Check = "series_consistency"
	CheckAuthor       Check = "author_consistency"
	CheckCompleteness Check = "completeness"
	CheckDataLoss     Check = "data_loss"
	CheckRelationship Check = "relationship_validity"
)

// Failure is one violated rule.
type Failure struct {
	GroupKey string `json:"group_key,omitempty" yaml:"group_key,omitempty"`
	RecordID string `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Check    Check  `json:"check" yaml:"check"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Result is the outcome of validating one or more groups.
type Result struct {
	Passed   bool      `json:"passed" yaml:"passed"`
	Failures []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Combine folds results together.
func Combine(results ...Result) Result {
	out := Result{Passed: true}
	for _, r := range results {
		out.Failures = append(out.Failures, r.Failures...)
	}
	out.Passed = len(out.Failures) == 0
	return out
}

// Validator checks groups after changes.
type Validator struct{}

// New returns a validator.
func New() *Validator {
	return &Validator{}
}

// Validate projects changes onto the group's records and checks the result.
func (v *Validator) Validate(group relations.Group, before []metadata.Record, changes []merge.Change) (Result, error) {
	members := membersOf(group, before)
	var relevant []merge.Change
	for _, c := range changes {
		if group.Contains(c.RecordID) {
			relevant = append(relevant, c)
		}
	}
	after, err := merge.Project(members, relevant)
	if err != nil {
		return Result{}, err
	}
	return v.Check(group, members, after), nil
}

// Check compares a group's records before and after a run.
func (v *Validator) Check(group relations.Group, before, after []metadata.Record) Result {
	before = membersOf(group, before)
	after = membersOf(group, after)

	var failures []Failure
	switch group.Kind {
	case relations.GroupSeries:
		for _, field := range compare.FieldsFor(relations.GroupSeries) {
			failures = append(failures, uniform(group, after, field, CheckSeries)...)
		}
	case relations.GroupAuthor, relations.GroupNarrator:
		for _, field := range compare.FieldsFor(group.Kind) {
			failures = append(failures, uniform(group, after, field, CheckAuthor)...)
		}
	}

	afterByID := make(map[string]metadata.Record, len(after))
	for _, r := range after {
		afterByID[r.ID] = r
	}
	for _, b := range before {
		a, ok := afterByID[b.ID]
		if !ok {
			failures = append(failures, Failure{GroupKey: group.Key, RecordID: b.ID, Check: CheckDataLoss, Reason: "record missing after run"})
			continue
		}
		failures = append(failures, completeness(group.Key, b, a)...)
		failures = append(failures, dataLoss(group.Key, b, a)...)
	}
	return Result{Passed: len(failures) == 0, Failures: failures}
}

// CheckRecords applies the per-record rules (completeness and data loss) to
// every record, independent of grouping.
func (v *Validator) CheckRecords(before, after []metadata.Record) Result {
	afterByID := make(map[string]metadata.Record, len(after))
	for _, r := range after {
		afterByID[r.ID] = r
	}
	var failures []Failure
	for _, b := range before {
		a, ok := afterByID[b.ID]
		if !ok {
			failures = append(failures, Failure{RecordID: b.ID, Check: CheckDataLoss, Reason: "record missing after run"})
			continue
		}
		failures = append(failures, completeness("", b, a)...)
		failures = append(failures, dataLoss("", b, a)...)
	}
	return Result{Passed: len(failures) == 0, Failures: failures}
}

// CheckRelationships verifies both ends of every relationship exist.
func (v *Validator) CheckRelationships(rels []relations.Relationship, records []metadata.Record) Result {
	known := make(map[string]struct{}, len(records))
	for _, r := range records {
		known[r.ID] = struct{}{}
	}
	var failures []Failure
	for _, rel := range rels {
		for _, id := range []string{rel.SubjectID, rel.ObjectID} {
			if _, ok := known[id]; !ok {
				failures = append(failures, Failure{
					GroupKey: rel.GroupKey,
					RecordID: id,
					Check:    CheckRelationship,
					Reason:   fmt.Sprintf("%s relationship references unknown record %q", rel.Kind, id),
				})
			}
		}
	}
	return Result{Passed: len(failures) == 0, Failures: failures}
}

func membersOf(group relations.Group, records []metadata.Record) []metadata.Record {
	out := make([]metadata.Record, 0, len(group.RecordIDs))
	for _, r := range records {
		if group.Contains(r.ID) {
			out = append(out, r)
		}
	}
	metadata.SortByID(out)
	return out
}

// uniform requires one normalized value of field across the group.
func uniform(group relations.Group, records []metadata.Record, field metadata.Field, check Check) []Failure {
	if len(records) < 2 {
		return nil
	}
	forms := make(map[string][]string)
	for _, r := range records {
		forms[canonicalForm(group, r, field)] = append(forms[canonicalForm(group, r, field)], r.ID)
	}
	if len(forms) == 1 {
		return nil
	}
	keys := make([]string, 0, len(forms))
	for k := range forms {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		label := k
		if label == "" {
			label = "(empty)"
		}
		parts = append(parts, fmt.Sprintf("%q on %s", label, strings.Join(forms[k], ",")))
	}
	return []Failure{{
		GroupKey: group.Key,
		Check:    check,
		Reason:   fmt.Sprintf("%s differs: %s", field, strings.Join(parts, "; ")),
	}}
}

func canonicalForm(group relations.Group, r metadata.Record, field metadata.Field) string {
	switch {
	case field == metadata.FieldAuthors:
		return textutil.Normalize(compare.IdentityName(group.Identity, r.Authors))
	case field.IsList():
		set := similarity.NormalizedSet(r.Get(field).List)
		items := make([]string, 0, len(set))
		for item := range set {
			items = append(items, item)
		}
		slices.Sort(items)
		return strings.Join(items, "|")
	default:
		return textutil.Normalize(r.Get(field).Text)
	}
}

func completeness(groupKey string, before, after metadata.Record) []Failure {
	was, is := metadata.Score(before), metadata.Score(after)
	if is+metadata.ScoreTolerance < was {
		return []Failure{{
			GroupKey: groupKey,
			RecordID: before.ID,
			Check:    CheckCompleteness,
			Reason:   fmt.Sprintf("completeness dropped from %.4f to %.4f", was, is),
		}}
	}
	return nil
}

func dataLoss(groupKey string, before, after metadata.Record) []Failure {
	var failures []Failure
	for _, field := range metadata.ProtectedFields() {
		if !before.Get(field).Equal(after.Get(field)) {
			failures = append(failures, Failure{
				GroupKey: groupKey,
				RecordID: before.ID,
				Check:    CheckDataLoss,
				Reason:   fmt.Sprintf("protected field %s changed", field),
			})
		}
	}
	return failures
}
