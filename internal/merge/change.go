package merge

import (
	"fmt"
	"slices"
	"strings"

	"harmony/internal/compare"
	"harmony/internal/metadata"
	"harmony/internal/similarity"
	"harmony/internal/textutil"
)

// Mode selects whether changes are forwarded to the library.
type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeApply  Mode = "apply"
)

// ParseMode validates a mode name.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(value))) {
	case ModeDryRun, "dry-run", "dryrun":
		return ModeDryRun, nil
	case ModeApply:
		return ModeApply, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected dry_run or apply)", value)
	}
}

// Change is one field update for one record.
type Change struct {
	RecordID   string         `json:"record_id"`
	Field      metadata.Field `json:"field"`
	Old        metadata.Value `json:"old"`
	New        metadata.Value `json:"new"`
	Confidence float64        `json:"confidence"`
	GroupKey   string         `json:"group_key"`
	SourceID   string         `json:"source_id"`
	Kind       compare.Kind   `json:"kind"`
	Mode       Mode           `json:"mode"`
}

// Key identifies the change within a run. A record in several groups can
// receive one change per group for the same field, so the group is part of
// the key.
func (c Change) Key() string {
	return c.RecordID + "|" + string(c.Field) + "|" + c.GroupKey
}

// Project applies changes to copies of records and recomputes their
// completeness. Records without changes are returned as copies.
func Project(records []metadata.Record, changes []Change) ([]metadata.Record, error) {
	out := make([]metadata.Record, len(records))
	index := make(map[string]int, len(records))
	for i, r := range records {
		out[i] = r.Clone()
		index[r.ID] = i
	}
	for _, c := range changes {
		i, ok := index[c.RecordID]
		if !ok {
			return nil, fmt.Errorf("change for unknown record %q", c.RecordID)
		}
		if err := out[i].Set(c.Field, c.New); err != nil {
			return nil, err
		}
	}
	for i := range out {
		out[i].Completeness = metadata.Score(out[i])
	}
	return out, nil
}

// sameForm reports whether two values only differ in formatting.
func sameForm(field metadata.Field, a, b metadata.Value) bool {
	if field.IsList() {
		return sameSet(similarity.NormalizedSet(a.List), similarity.NormalizedSet(b.List))
	}
	return textutil.Normalize(a.String()) == textutil.Normalize(b.String())
}

// PreviewRow is one line of a dry-run preview.
type PreviewRow struct {
	RecordID   string  `json:"record_id" yaml:"record_id"`
	Field      string  `json:"field" yaml:"field"`
	Old        string  `json:"old" yaml:"old"`
	New        string  `json:"new" yaml:"new"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Intent     string  `json:"intent" yaml:"intent"`
}

// Preview renders changes for display, ordered by record and field.
func Preview(changes []Change) []PreviewRow {
	rows := make([]PreviewRow, 0, len(changes))
	for _, c := range changes {
		intent := "apply"
		if c.Mode == ModeDryRun {
			intent = "would apply"
		}
		rows = append(rows, PreviewRow{
			RecordID:   c.RecordID,
			Field:      string(c.Field),
			Old:        c.Old.String(),
			New:        c.New.String(),
			Confidence: c.Confidence,
			Intent:     intent,
		})
	}
	slices.SortStableFunc(rows, func(a, b PreviewRow) int {
		if d := strings.Compare(a.RecordID, b.RecordID); d != 0 {
			return d
		}
		return strings.Compare(a.Field, b.Field)
	})
	return rows
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}
