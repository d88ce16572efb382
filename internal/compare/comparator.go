package compare

import (
	"slices"
	"strings"

	"harmony/internal/metadata"
	"harmony/internal/relations"
	"harmony/internal/similarity"
	"harmony/internal/textutil"
)

const (
	missingAgreeConfidence    = 0.95
	missingDisagreeConfidence = 0.5
	incompleteConfidence      = 0.9
	lowAgreementConfidence    = 0.5
)

var (
	seriesFields   = []metadata.Field{metadata.FieldSeries, metadata.FieldPublisher, metadata.FieldGenres}
	authorFields   = []metadata.Field{metadata.FieldAuthors}
	narratorFields = []metadata.Field{metadata.FieldNarrator}
)

// FieldsFor returns the harmonizable fields of a group kind.
func FieldsFor(kind relations.GroupKind) []metadata.Field {
	switch kind {
	case relations.GroupSeries:
		return slices.Clone(seriesFields)
	case relations.GroupAuthor:
		return slices.Clone(authorFields)
	case relations.GroupNarrator:
		return slices.Clone(narratorFields)
	default:
		return nil
	}
}

// Comparator detects discrepancies with a similarity matcher.
type Comparator struct {
	matcher similarity.Matcher
}

// New builds a comparator.
func New(matcher similarity.Matcher) *Comparator {
	if matcher == nil {
		matcher = similarity.New()
	}
	return &Comparator{matcher: matcher}
}

// Compare classifies each applicable field across the group members.
// members must hold the group's records; fields outside the group kind's
// harmonizable set (and protected fields) are ignored. An empty field list
// means every applicable field.
func (c *Comparator) Compare(group relations.Group, members []metadata.Record, fields ...metadata.Field) []Discrepancy {
	applicable := FieldsFor(group.Kind)
	if len(fields) > 0 {
		applicable = slices.DeleteFunc(applicable, func(f metadata.Field) bool {
			return !slices.Contains(fields, f)
		})
	}
	ordered := slices.DeleteFunc(slices.Clone(members), func(r metadata.Record) bool {
		return !group.Contains(r.ID)
	})
	metadata.SortByID(ordered)
	if len(ordered) < 2 {
		return nil
	}

	var out []Discrepancy
	for _, field := range applicable {
		if field.Protected() {
			continue
		}
		observed := make([]Observation, 0, len(ordered))
		for _, r := range ordered {
			observed = append(observed, Observation{RecordID: r.ID, Value: observe(group, r, field)})
		}
		if d, ok := c.classify(group, field, observed); ok {
			out = append(out, d)
		}
	}
	return out
}

// observe extracts the value a record contributes for field. In author
// groups only the name belonging to the group's identity is observed.
func observe(group relations.Group, r metadata.Record, field metadata.Field) metadata.Value {
	if field == metadata.FieldAuthors {
		return metadata.TextValue(IdentityName(group.Identity, r.Authors))
	}
	return r.Get(field)
}

// IdentityName returns the first name in names that is a variant of
// identity.
func IdentityName(identity *relations.Identity, names []string) string {
	if identity == nil {
		return ""
	}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if slices.Contains(identity.Variants, name) {
			return name
		}
	}
	return ""
}

func (c *Comparator) classify(group relations.Group, field metadata.Field, observed []Observation) (Discrepancy, bool) {
	var present, absent []Observation
	for _, o := range observed {
		if o.Value.IsEmpty() {
			absent = append(absent, o)
		} else {
			present = append(present, o)
		}
	}
	if len(present) == 0 {
		return Discrepancy{}, false
	}

	d := Discrepancy{
		GroupKey:  group.Key,
		GroupKind: group.Kind,
		Field:     field,
		Observed:  observed,
		Identity:  group.Identity,
	}
	classes := c.equivalenceClasses(field, present)

	switch {
	case len(absent) > 0:
		d.Kind = KindMissing
		d.Confidence = missingDisagreeConfidence
		if len(classes) == 1 {
			d.Confidence = missingAgreeConfidence
		}
		d.Candidates = recordIDs(present)
	case len(classes) == 1:
		return Discrepancy{}, false
	default:
		if richest, ok := richestClass(field, classes); ok {
			d.Kind = KindIncomplete
			d.Confidence = incompleteConfidence
			d.Candidates = recordIDs(richest)
		} else {
			d.Kind = KindConflicting
			d.Confidence = agreementConfidence(classes, len(present))
			d.Candidates = recordIDs(present)
		}
	}
	if isNameField(field) && d.Kind != KindMissing {
		d.Confidence = group.Confidence
	}
	d.Confidence = metadata.Round(min(d.Confidence, group.Confidence))
	d.Priority = priority(d)
	return d, true
}

// equivalenceClasses partitions observations by semantic equality with the
// first member of each class.
func (c *Comparator) equivalenceClasses(field metadata.Field, present []Observation) [][]Observation {
	var classes [][]Observation
	for _, o := range present {
		placed := false
		for i, class := range classes {
			if c.equivalent(field, class[0].Value, o.Value) {
				classes[i] = append(classes[i], o)
				placed = true
				break
			}
		}
		if !placed {
			classes = append(classes, []Observation{o})
		}
	}
	return classes
}

// equivalent decides semantic equality for a field. Names inside an
// identity group are compared as text: identity is already established and
// only spelling differences are left to harmonize.
func (c *Comparator) equivalent(field metadata.Field, a, b metadata.Value) bool {
	switch {
	case field.IsList() && field != metadata.FieldAuthors:
		return c.matcher.EqualLists(a.List, b.List)
	case isNameField(field):
		return c.matcher.SemanticallyEqual(a.Text, b.Text, similarity.KindText)
	default:
		return c.matcher.SemanticallyEqual(a.String(), b.String(), field.Kind())
	}
}

func isNameField(field metadata.Field) bool {
	return field == metadata.FieldAuthors || field == metadata.FieldNarrator
}

// richestClass returns the class whose detail contains every other value,
// when such a class exists.
func richestClass(field metadata.Field, classes [][]Observation) ([]Observation, bool) {
	best := 0
	for i := range classes {
		if len(detail(field, classes[i][0].Value)) > len(detail(field, classes[best][0].Value)) {
			best = i
		}
	}
	richest := detail(field, classes[best][0].Value)
	for i, class := range classes {
		if i == best {
			continue
		}
		for token := range detail(field, class[0].Value) {
			if _, ok := richest[token]; !ok {
				return nil, false
			}
		}
	}
	return classes[best], true
}

func detail(field metadata.Field, v metadata.Value) map[string]struct{} {
	if field.IsList() && v.List != nil {
		return similarity.NormalizedSet(v.List)
	}
	return textutil.TokenSet(v.String())
}

func agreementConfidence(classes [][]Observation, total int) float64 {
	largest := 0
	for _, class := range classes {
		largest = max(largest, len(class))
	}
	ratio := float64(largest) / float64(total)
	switch {
	case ratio >= 0.8:
		return 0.9
	case ratio >= 0.6:
		return 0.75
	default:
		return lowAgreementConfidence
	}
}

func recordIDs(obs []Observation) []string {
	out := make([]string, 0, len(obs))
	for _, o := range obs {
		out = append(out, o.RecordID)
	}
	return out
}
