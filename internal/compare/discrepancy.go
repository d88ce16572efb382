package compare

import (
	"cmp"
	"slices"

	"harmony/internal/metadata"
	"harmony/internal/relations"
)

// Kind classifies a discrepancy.
type Kind string

const (
	KindMissing     Kind = "missing"
	KindConflicting Kind = "conflicting"
	KindIncomplete  Kind = "incomplete"
)

// Observation is one record's value for the compared field.
type Observation struct {
	RecordID string         `json:"record_id"`
	Value    metadata.Value `json:"value"`
}

// Discrepancy is a semantically meaningful difference of one field across
// the members of a group.
type Discrepancy struct {
	GroupKey   string              `json:"group_key"`
	GroupKind  relations.GroupKind `json:"group_kind"`
	Field      metadata.Field      `json:"field"`
	Kind       Kind                `json:"kind"`
	Observed   []Observation       `json:"observed"`
	Confidence float64             `json:"confidence"`
	// Candidates are the records whose value may become authoritative.
	Candidates []string `json:"candidates"`
	// Identity is the canonical name for author and narrator groups.
	Identity *relations.Identity `json:"identity,omitempty"`
	Priority float64             `json:"priority"`
}

// Key identifies the discrepancy within a run.
func (d Discrepancy) Key() string {
	return d.GroupKey + "|" + string(d.Field)
}

// RecordIDs lists every observed record.
func (d Discrepancy) RecordIDs() []string {
	out := make([]string, 0, len(d.Observed))
	for _, o := range d.Observed {
		out = append(out, o.RecordID)
	}
	return out
}

// Prioritize orders discrepancies by field importance, conflicting ones
// first within a weight, and then by group and field for stability.
func Prioritize(ds []Discrepancy) {
	for i := range ds {
		ds[i].Priority = priority(ds[i])
	}
	slices.SortStableFunc(ds, func(a, b Discrepancy) int {
		return cmp.Or(
			cmp.Compare(b.Priority, a.Priority),
			cmp.Compare(a.GroupKey, b.GroupKey),
			cmp.Compare(a.Field, b.Field),
		)
	})
}

func priority(d Discrepancy) float64 {
	p := d.Field.Weight()
	if d.Kind == KindConflicting {
		p += 0.1
	}
	return metadata.Round(p)
}

// CountByField tallies discrepancies per field.
func CountByField(ds []Discrepancy) map[metadata.Field]int {
	out := make(map[metadata.Field]int)
	for _, d := range ds {
		out[d.Field]++
	}
	return out
}
