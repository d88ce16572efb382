package relations

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"harmony/internal/metadata"
	"harmony/internal/similarity"
	"harmony/internal/textutil"
)

const (
	// SeriesVariantThreshold is the Similar score at which two series names
	// are spellings of one series.
	SeriesVariantThreshold = 0.85

	AdoptionWithSequence    = 0.85
	AdoptionWithoutSequence = 0.7

	sparseSequencePenalty    = 0.9
	manyAuthorsPenalty       = 0.85
	manyPublishersPenalty    = 0.95
	duplicateSequencePenalty = 0.75
)

type seriesCluster struct {
	key        string
	label      string
	members    []int
	adopted    map[int]float64
	confidence float64
	duplicate  bool
}

func (c *seriesCluster) groupKey() string { return "series:" + c.key }

// groupConfidence is the weakest membership in the cluster.
func (c *seriesCluster) groupConfidence() float64 {
	conf := c.confidence
	for _, adoption := range c.adopted {
		conf = min(conf, adoption)
	}
	return conf
}

func (c *seriesCluster) allMembers() []int {
	out := slices.Clone(c.members)
	for i := range c.adopted {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// memberConfidence is the confidence that record i belongs to the cluster.
func (c *seriesCluster) memberConfidence(i int) float64 {
	if adoption, ok := c.adopted[i]; ok {
		return min(adoption, c.confidence)
	}
	return c.confidence
}

// buildSeries groups records by normalized series key, merging keys whose
// names are spelling variants, and scores each group.
func buildSeries(records []metadata.Record, authors *identityIndex, universe *Universe, matcher similarity.Matcher, threshold float64) []*seriesCluster {
	keyMembers := make(map[string][]int)
	labels := make(map[string]map[string]int)
	for i, r := range records {
		key := textutil.Normalize(r.Series)
		if key == "" {
			continue
		}
		keyMembers[key] = append(keyMembers[key], i)
		if labels[key] == nil {
			labels[key] = make(map[string]int)
		}
		labels[key][strings.TrimSpace(r.Series)]++
	}
	keys := make([]string, 0, len(keyMembers))
	for key := range keyMembers {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	position := make(map[string]int, len(keys))
	for i, key := range keys {
		position[key] = i
	}

	var edges []scoredPair
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			a, b := keys[i], keys[j]
			if universe.Related(a, b) || digitsOf(a) != digitsOf(b) {
				continue
			}
			if score := matcher.Similar(a, b); score >= SeriesVariantThreshold {
				edges = append(edges, scoredPair{pair: pairOf(a, b), score: score})
			}
		}
	}
	sortScoredPairs(edges)
	ds := newDisjointSet(len(keys))
	weakest := make(map[int]float64)
	var merged []scoredPair
	for _, edge := range edges {
		if ds.union(position[edge.pair.a], position[edge.pair.b]) {
			merged = append(merged, edge)
		}
	}
	for _, edge := range merged {
		root := ds.find(position[edge.pair.a])
		if current, ok := weakest[root]; !ok || edge.score < current {
			weakest[root] = edge.score
		}
	}

	byRoot := make(map[int][]string)
	for i, key := range keys {
		root := ds.find(i)
		byRoot[root] = append(byRoot[root], key)
	}

	clusters := make([]*seriesCluster, 0, len(byRoot))
	for root, variantKeys := range byRoot {
		canonical := variantKeys[0]
		var members []int
		for _, key := range variantKeys {
			members = append(members, keyMembers[key]...)
			if len(keyMembers[key]) > len(keyMembers[canonical]) {
				canonical = key
			}
		}
		slices.Sort(members)
		link := 1.0
		if w, ok := weakest[root]; ok {
			link = w
		}
		cluster := &seriesCluster{
			key:     canonical,
			label:   mostUsed(labels[canonical]),
			members: members,
			adopted: make(map[int]float64),
		}
		cluster.confidence, cluster.duplicate = scoreSeries(records, members, authors, link, threshold)
		clusters = append(clusters, cluster)
	}
	slices.SortFunc(clusters, func(a, b *seriesCluster) int { return cmp.Compare(a.key, b.key) })

	adoptOrphans(records, clusters, authors)
	return clusters
}

// scoreSeries starts from the variant link confidence and applies the
// membership penalties. Without a conflicting sequence the result is floored
// at the acceptance threshold.
func scoreSeries(records []metadata.Record, members []int, authors *identityIndex, link, threshold float64) (float64, bool) {
	withSequence := 0
	sequences := make(map[float64]int)
	identities := make(map[int]struct{})
	publishers := make(map[string]struct{})
	duplicate := false
	for _, i := range members {
		r := records[i]
		if r.SeriesSequence != nil {
			withSequence++
			sequences[*r.SeriesSequence]++
			if sequences[*r.SeriesSequence] > 1 {
				duplicate = true
			}
		}
		for _, name := range r.Authors {
			if id, ok := authors.lookup(name); ok {
				identities[id] = struct{}{}
			}
		}
		if p := textutil.Normalize(r.Publisher); p != "" {
			publishers[p] = struct{}{}
		}
	}

	confidence := link
	if withSequence*2 < len(members) {
		confidence *= sparseSequencePenalty
	}
	if len(identities) > 3 {
		confidence *= manyAuthorsPenalty
	}
	if len(publishers) > 2 {
		confidence *= manyPublishersPenalty
	}
	if duplicate {
		confidence *= duplicateSequencePenalty
	} else if confidence < threshold {
		confidence = threshold
	}
	return roundConfidence(min(confidence, 1)), duplicate
}

// adoptOrphans attaches records without a series to the only series their
// single author identity appears in.
func adoptOrphans(records []metadata.Record, clusters []*seriesCluster, authors *identityIndex) {
	seriesOf := make(map[int]map[int]struct{})
	for ci, cluster := range clusters {
		for _, i := range cluster.members {
			for _, id := range recordIdentities(records[i], authors) {
				if seriesOf[id] == nil {
					seriesOf[id] = make(map[int]struct{})
				}
				seriesOf[id][ci] = struct{}{}
			}
		}
	}

	for i, r := range records {
		if strings.TrimSpace(r.Series) != "" {
			continue
		}
		ids := recordIdentities(r, authors)
		if len(ids) != 1 {
			continue
		}
		owned := seriesOf[ids[0]]
		if len(owned) != 1 {
			continue
		}
		for ci := range owned {
			adoption := AdoptionWithoutSequence
			if r.SeriesSequence != nil {
				adoption = AdoptionWithSequence
			}
			clusters[ci].adopted[i] = adoption
		}
	}
}

func recordIdentities(r metadata.Record, authors *identityIndex) []int {
	var out []int
	for _, name := range r.Authors {
		if id, ok := authors.lookup(name); ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func digitsOf(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		} else if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func mostUsed(counts map[string]int) string {
	best := ""
	for name, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && name < best) {
			best = name
		}
	}
	return best
}
