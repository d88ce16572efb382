package metadata

import "math"

// ScoreTolerance absorbs rounding noise when comparing scores.
const ScoreTolerance = 0.001

// Score returns the weighted share of populated fields, rounded to four
// decimals. An empty record scores 0; a fully populated one scores 1.
func Score(r Record) float64 {
	var earned float64
	for _, f := range fieldOrder {
		if r.Has(f) {
			earned += f.Weight()
		}
	}
	return Round(earned / totalWeight())
}

// Round rounds to the four decimals scores are reported with.
func Round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// MissingFields lists the unpopulated fields, heaviest first.
func MissingFields(r Record) []Field {
	var out []Field
	for _, f := range fieldOrder {
		if !r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
