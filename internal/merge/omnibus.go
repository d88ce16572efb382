package merge

import (
	"slices"
	"strings"

	"harmony/internal/metadata"
	"harmony/internal/textutil"
)

// Omnibus fills an omnibus edition from its component books: the series
// comes from the components, the publisher from every record and the genres
// are the sorted union of all genres. Only fields that actually change are
// returned as changes.
func Omnibus(omnibus metadata.Record, components []metadata.Record, mode Mode) (metadata.Record, []Change) {
	updated := omnibus.Clone()

	var series, publishers []string
	genres := make(map[string]string)
	addGenres := func(values []string) {
		for _, g := range values {
			if key := textutil.Normalize(g); key != "" {
				if _, ok := genres[key]; !ok {
					genres[key] = strings.TrimSpace(g)
				}
			}
		}
	}
	addGenres(omnibus.Genres)
	publishers = append(publishers, omnibus.Publisher)
	for _, c := range components {
		series = append(series, c.Series)
		publishers = append(publishers, c.Publisher)
		addGenres(c.Genres)
	}

	if s := mostCommon(series); s != "" {
		updated.Series = s
	}
	if p := mostCommon(publishers); p != "" {
		updated.Publisher = p
	}
	if len(genres) > 0 {
		merged := make([]string, 0, len(genres))
		for _, g := range genres {
			merged = append(merged, g)
		}
		slices.SortFunc(merged, func(a, b string) int {
			return strings.Compare(textutil.Normalize(a), textutil.Normalize(b))
		})
		updated.Genres = merged
	}
	updated.Completeness = metadata.Score(updated)

	var changes []Change
	for _, field := range []metadata.Field{metadata.FieldSeries, metadata.FieldPublisher, metadata.FieldGenres} {
		before, after := omnibus.Get(field), updated.Get(field)
		if sameForm(field, before, after) {
			continue
		}
		changes = append(changes, Change{
			RecordID:   omnibus.ID,
			Field:      field,
			Old:        before,
			New:        after,
			Confidence: 1,
			GroupKey:   "omnibus:" + omnibus.ID,
			Kind:       "omnibus",
			Mode:       mode,
		})
	}
	return updated, changes
}

// mostCommon returns the most frequent non-blank value by normalized form,
// keeping the first spelling seen. Ties go to the lexically smaller form.
func mostCommon(values []string) string {
	counts := make(map[string]int)
	spelling := make(map[string]string)
	for _, v := range values {
		key := textutil.Normalize(v)
		if key == "" {
			continue
		}
		counts[key]++
		if _, ok := spelling[key]; !ok {
			spelling[key] = strings.TrimSpace(v)
		}
	}
	best := ""
	for key, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && key < best) {
			best = key
		}
	}
	return spelling[best]
}
