package relations

import (
	"cmp"
	"slices"
	"strings"

	"harmony/internal/similarity"
)

// Identity is one person referenced by one or more name strings.
type Identity struct {
	Canonical  string   `json:"canonical"`
	Variants   []string `json:"variants"`
	Confidence float64  `json:"confidence"`
}

type namePair struct {
	a, b string
}

func pairOf(a, b string) namePair {
	if b < a {
		a, b = b, a
	}
	return namePair{a: a, b: b}
}

type scoredPair struct {
	pair  namePair
	score float64
}

// identityIndex maps raw names onto identities built by union-find.
type identityIndex struct {
	identities []Identity
	byName     map[string]int
	scores     map[namePair]float64
	near       []scoredPair
}

// buildIdentities unions every name pair that scores at least the identity
// threshold and the acceptance threshold. Pairs that clear the identity
// threshold but not the acceptance threshold are kept as near misses for
// manual review. counts holds the number of records using each name.
func buildIdentities(counts map[string]int, matcher similarity.Matcher, threshold float64) *identityIndex {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)

	idx := &identityIndex{
		byName: make(map[string]int, len(names)),
		scores: make(map[namePair]float64),
	}
	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i
	}

	var edges []scoredPair
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			score := matcher.Similar(names[i], names[j])
			if score < similarity.IdentityThreshold {
				continue
			}
			sp := scoredPair{pair: pairOf(names[i], names[j]), score: score}
			idx.scores[sp.pair] = score
			if score >= threshold {
				edges = append(edges, sp)
			} else {
				idx.near = append(idx.near, sp)
			}
		}
	}
	sortScoredPairs(edges)

	ds := newDisjointSet(len(names))
	var merged []scoredPair
	for _, edge := range edges {
		if ds.union(position[edge.pair.a], position[edge.pair.b]) {
			merged = append(merged, edge)
		}
	}

	weakest := make(map[int]float64)
	for _, edge := range merged {
		root := ds.find(position[edge.pair.a])
		if current, ok := weakest[root]; !ok || edge.score < current {
			weakest[root] = edge.score
		}
	}

	members := make(map[int][]string)
	for i, name := range names {
		root := ds.find(i)
		members[root] = append(members[root], name)
	}
	for root, variants := range members {
		confidence := 1.0
		if w, ok := weakest[root]; ok {
			confidence = w
		}
		idx.identities = append(idx.identities, Identity{
			Canonical:  canonicalName(variants, counts),
			Variants:   variants,
			Confidence: roundConfidence(confidence),
		})
	}
	slices.SortFunc(idx.identities, func(x, y Identity) int {
		return cmp.Or(cmp.Compare(x.Canonical, y.Canonical), cmp.Compare(x.Variants[0], y.Variants[0]))
	})
	for i, identity := range idx.identities {
		for _, variant := range identity.Variants {
			idx.byName[variant] = i
		}
	}

	near := idx.near[:0]
	for _, sp := range idx.near {
		if idx.byName[sp.pair.a] != idx.byName[sp.pair.b] {
			near = append(near, sp)
		}
	}
	idx.near = near
	sortScoredPairs(idx.near)
	return idx
}

// canonicalName picks the most used variant, breaking ties lexically.
func canonicalName(variants []string, counts map[string]int) string {
	best := variants[0]
	for _, v := range variants[1:] {
		if counts[v] > counts[best] || (counts[v] == counts[best] && v < best) {
			best = v
		}
	}
	return best
}

func sortScoredPairs(pairs []scoredPair) {
	slices.SortFunc(pairs, func(x, y scoredPair) int {
		return cmp.Or(
			cmp.Compare(y.score, x.score),
			cmp.Compare(x.pair.a, y.pair.a),
			cmp.Compare(x.pair.b, y.pair.b),
		)
	})
}

func (idx *identityIndex) lookup(name string) (int, bool) {
	i, ok := idx.byName[strings.TrimSpace(name)]
	return i, ok
}

// pairConfidence is the confidence that two names of one identity refer to
// the same person: identical strings score 1, otherwise the direct score or
// the identity's weakest link, whichever is higher.
func (idx *identityIndex) pairConfidence(identity int, a, b string) float64 {
	if a == b {
		return 1
	}
	confidence := idx.identities[identity].Confidence
	if direct, ok := idx.scores[pairOf(a, b)]; ok && direct > confidence {
		confidence = direct
	}
	return confidence
}

// nameCounts tallies how many records use each trimmed, non-blank name.
func nameCounts[T any](items []T, namesOf func(T) []string) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		seen := make(map[string]struct{})
		for _, raw := range namesOf(item) {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			counts[name]++
		}
	}
	return counts
}
