package merge

import (
	"fmt"
	"slices"
	"strings"

	"harmony/internal/compare"
	"harmony/internal/metadata"
	"harmony/internal/services"
	"harmony/internal/textutil"
)

// Resolution is the outcome of resolving one discrepancy.
type Resolution struct {
	GroupKey   string         `json:"group_key"`
	Field      metadata.Field `json:"field"`
	Kind       compare.Kind   `json:"kind"`
	SourceID   string         `json:"source_id,omitempty"`
	Value      metadata.Value `json:"value"`
	Confidence float64        `json:"confidence"`
	Changes    []Change       `json:"changes,omitempty"`
	// Skipped explains why no value was chosen.
	Skipped string `json:"skipped,omitempty"`
}

// Resolver picks authoritative values by completeness.
type Resolver struct{}

// NewResolver returns a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve chooses the authoritative value for d among its candidate records
// and describes the change every other member needs. scores holds the
// completeness of each member; missing entries are computed on the fly.
func (r *Resolver) Resolve(d compare.Discrepancy, members []metadata.Record, scores map[string]float64, mode Mode) (Resolution, error) {
	res := Resolution{GroupKey: d.GroupKey, Field: d.Field, Kind: d.Kind, Confidence: d.Confidence}
	if d.Field.Protected() {
		res.Skipped = "protected field"
		return res, nil
	}

	byID := make(map[string]metadata.Record, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	var candidates []metadata.Record
	for _, id := range d.Candidates {
		if rec, ok := byID[id]; ok {
			candidates = append(candidates, rec)
		}
	}
	source, ok := SelectSource(candidates, scores)
	if !ok {
		return res, services.Wrap(services.ErrValidation, "merging", "resolve",
			fmt.Sprintf("no candidate record for %s in %s", d.Field, d.GroupKey), nil)
	}

	var value metadata.Value
	for _, o := range d.Observed {
		if o.RecordID == source.ID {
			value = o.Value.Clone()
			break
		}
	}
	if value.IsEmpty() {
		return res, services.Wrap(services.ErrValidation, "merging", "resolve",
			fmt.Sprintf("source %s has no %s value", source.ID, d.Field), nil)
	}
	res.SourceID = source.ID
	res.Value = value

	for _, o := range d.Observed {
		rec, ok := byID[o.RecordID]
		if !ok || sameObserved(d.Field, o.Value, value) {
			continue
		}
		change := Change{
			RecordID:   rec.ID,
			Field:      d.Field,
			Old:        rec.Get(d.Field),
			New:        value.Clone(),
			Confidence: d.Confidence,
			GroupKey:   d.GroupKey,
			SourceID:   source.ID,
			Kind:       d.Kind,
			Mode:       mode,
		}
		if d.Field == metadata.FieldAuthors {
			change.New = metadata.ListValue(replaceName(rec.Authors, o.Value.Text, value.Text))
		}
		res.Changes = append(res.Changes, change)
	}
	return res, nil
}

// sameObserved compares observed values. Author groups observe a single
// name rather than the whole author list.
func sameObserved(field metadata.Field, a, b metadata.Value) bool {
	if field == metadata.FieldAuthors {
		return textutil.Normalize(a.Text) == textutil.Normalize(b.Text)
	}
	return sameForm(field, a, b)
}

// SelectSource returns the authoritative record: highest completeness, then
// more ISBN/ASIN identifiers, then lowest record id.
func SelectSource(candidates []metadata.Record, scores map[string]float64) (metadata.Record, bool) {
	if len(candidates) == 0 {
		return metadata.Record{}, false
	}
	scoreOf := func(rec metadata.Record) float64 {
		if s, ok := scores[rec.ID]; ok {
			return s
		}
		return metadata.Score(rec)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		sb, sc := scoreOf(best), scoreOf(c)
		switch {
		case sc > sb:
			best = c
		case sc < sb:
		case c.IdentifierCount() > best.IdentifierCount():
			best = c
		case c.IdentifierCount() < best.IdentifierCount():
		case c.ID < best.ID:
			best = c
		}
	}
	return best, true
}

// replaceName swaps the identity's name inside an author list, keeping the
// position of every other author.
func replaceName(authors []string, old, replacement string) []string {
	out := slices.Clone(authors)
	target := textutil.Normalize(old)
	for i, name := range out {
		if strings.TrimSpace(name) == strings.TrimSpace(old) || (target != "" && textutil.Normalize(name) == target) {
			out[i] = replacement
			return out
		}
	}
	return append(out, replacement)
}
