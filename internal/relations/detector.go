package relations

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"harmony/internal/metadata"
	"harmony/internal/services"
	"harmony/internal/similarity"
	"harmony/internal/textutil"
)

// DefaultThreshold is the acceptance threshold used when none is configured.
const DefaultThreshold = 0.8

// Result is the outcome of one detection pass.
type Result struct {
	// Active relationships cleared the acceptance threshold.
	Active []Relationship
	// Review relationships fell below it and are only fit for manual review.
	Review []Relationship
	// Groups are built from active relationships only.
	Groups   []Group
	Universe *Universe
	// Isolated lists records with no active relationship at all.
	Isolated []string
}

// CountByKind tallies active relationships per kind.
func (r Result) CountByKind() map[Kind]int {
	out := make(map[Kind]int, len(Kinds()))
	for _, kind := range Kinds() {
		out[kind] = 0
	}
	for _, rel := range r.Active {
		out[rel.Kind]++
	}
	return out
}

// Detector finds relationships between records.
type Detector struct {
	matcher   similarity.Matcher
	threshold float64
}

// NewDetector builds a detector that accepts relationships at or above
// threshold.
func NewDetector(matcher similarity.Matcher, threshold float64) *Detector {
	if matcher == nil {
		matcher = similarity.New()
	}
	return &Detector{matcher: matcher, threshold: threshold}
}

func authorsOf(r metadata.Record) []string { return r.Authors }

func narratorOf(r metadata.Record) []string { return []string{r.Narrator} }

// Detect relates every record to every other record it shares an author,
// narrator, series or universe with. Records are processed in id order so
// the result is reproducible.
func (d *Detector) Detect(input []metadata.Record) (Result, error) {
	records := slices.Clone(input)
	metadata.SortByID(records)
	for i := 1; i < len(records); i++ {
		if records[i].ID == records[i-1].ID {
			return Result{}, services.Wrap(services.ErrDataIntegrity, "detecting", "index records",
				fmt.Sprintf("duplicate record id %q", records[i].ID), nil)
		}
	}

	authors := buildIdentities(nameCounts(records, authorsOf), d.matcher, d.threshold)
	narrators := buildIdentities(nameCounts(records, narratorOf), d.matcher, d.threshold)

	seriesNames := make([]string, 0, len(records))
	for _, r := range records {
		if name := strings.TrimSpace(r.Series); name != "" {
			seriesNames = append(seriesNames, name)
		}
	}
	universe := BuildUniverse(seriesNames)
	clusters := buildSeries(records, authors, universe, d.matcher, d.threshold)

	all := newRelationshipSet()
	var groups []Group
	groups = append(groups, d.identityRelationships(records, authors, authorsOf, KindSameAuthor, GroupAuthor, all)...)
	groups = append(groups, d.identityRelationships(records, narrators, narratorOf, KindSameNarrator, GroupNarrator, all)...)
	groups = append(groups, d.seriesRelationships(records, clusters, all)...)
	d.universeRelationships(records, universe, all)

	rels := all.list()
	for _, rel := range rels {
		if err := rel.Validate(); err != nil {
			return Result{}, err
		}
	}
	active, review := Partition(rels, d.threshold)

	linked := make(map[string]struct{})
	for _, rel := range active {
		linked[rel.SubjectID] = struct{}{}
		linked[rel.ObjectID] = struct{}{}
	}
	var isolated []string
	for _, r := range records {
		if _, ok := linked[r.ID]; !ok {
			isolated = append(isolated, r.ID)
		}
	}

	slices.SortFunc(groups, func(a, b Group) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Key, b.Key))
	})
	return Result{
		Active:   active,
		Review:   review,
		Groups:   groups,
		Universe: universe,
		Isolated: isolated,
	}, nil
}

// identityRelationships relates records sharing an identity and records
// whose names were near misses of each other.
func (d *Detector) identityRelationships(records []metadata.Record, idx *identityIndex, namesOf func(metadata.Record) []string, kind Kind, groupKind GroupKind, out *relationshipSet) []Group {
	type membership struct {
		record int
		names  []string
	}
	members := make(map[int][]membership)
	byName := make(map[string][]int)
	for i, r := range records {
		perIdentity := make(map[int][]string)
		for _, raw := range namesOf(r) {
			name := strings.TrimSpace(raw)
			id, ok := idx.lookup(name)
			if !ok {
				continue
			}
			perIdentity[id] = append(perIdentity[id], name)
			byName[name] = append(byName[name], i)
		}
		for id, names := range perIdentity {
			members[id] = append(members[id], membership{record: i, names: names})
		}
	}

	var groups []Group
	for id, identity := range idx.identities {
		list := members[id]
		if len(list) < 2 {
			continue
		}
		slices.SortFunc(list, func(a, b membership) int { return cmp.Compare(a.record, b.record) })
		key := string(groupKind) + ":" + textutil.Normalize(identity.Canonical)
		ids := make([]string, 0, len(list))
		for i, a := range list {
			ids = append(ids, records[a.record].ID)
			for _, b := range list[i+1:] {
				best, matchA, matchB := 0.0, "", ""
				for _, na := range a.names {
					for _, nb := range b.names {
						if c := idx.pairConfidence(id, na, nb); c > best {
							best, matchA, matchB = c, na, nb
						}
					}
				}
				out.add(newRelationship(records[a.record].ID, records[b.record].ID, kind, best, key, matchA, matchB))
			}
		}
		identityCopy := identity
		identityCopy.Variants = slices.Clone(identity.Variants)
		groups = append(groups, Group{
			Key:        key,
			Kind:       groupKind,
			RecordIDs:  ids,
			Confidence: identity.Confidence,
			Identity:   &identityCopy,
			Label:      identity.Canonical,
		})
	}

	for _, near := range idx.near {
		for _, i := range byName[near.pair.a] {
			for _, j := range byName[near.pair.b] {
				if i == j {
					continue
				}
				key := string(groupKind) + ":" + textutil.Normalize(near.pair.a)
				out.add(newRelationship(records[i].ID, records[j].ID, kind, near.score, key, near.pair.a, near.pair.b))
			}
		}
	}
	return groups
}

// seriesRelationships relates every pair of series members. A pair is only
// as strong as its weaker membership.
func (d *Detector) seriesRelationships(records []metadata.Record, clusters []*seriesCluster, out *relationshipSet) []Group {
	var groups []Group
	for _, cluster := range clusters {
		all := cluster.allMembers()
		if len(all) < 2 {
			continue
		}
		key := cluster.groupKey()
		var accepted []string
		confidence := 1.0
		for n, i := range all {
			mi := cluster.memberConfidence(i)
			if mi >= d.threshold {
				accepted = append(accepted, records[i].ID)
				confidence = min(confidence, mi)
			}
			for _, j := range all[n+1:] {
				c := min(mi, cluster.memberConfidence(j))
				out.add(newRelationship(records[i].ID, records[j].ID, KindSameSeries, c, key, records[i].Series, records[j].Series))
			}
		}
		if len(accepted) < 2 {
			continue
		}
		groups = append(groups, Group{
			Key:        key,
			Kind:       GroupSeries,
			RecordIDs:  accepted,
			Confidence: roundConfidence(confidence),
			Label:      cluster.label,
		})
	}
	return groups
}

// universeRelationships relates records whose series share a universe root
// but are different series.
func (d *Detector) universeRelationships(records []metadata.Record, universe *Universe, out *relationshipSet) {
	type member struct {
		record int
		key    string
	}
	byRoot := make(map[string][]member)
	for i, r := range records {
		key := textutil.Normalize(r.Series)
		if key == "" {
			continue
		}
		root := universe.Root(key)
		if root == key && !universe.hasChildren(key) {
			continue
		}
		byRoot[root] = append(byRoot[root], member{record: i, key: key})
	}
	for root, list := range byRoot {
		for n, a := range list {
			for _, b := range list[n+1:] {
				if a.key == b.key {
					continue
				}
				out.add(newRelationship(records[a.record].ID, records[b.record].ID, KindSameUniverse,
					UniverseConfidence, "universe:"+root, records[a.record].Series, records[b.record].Series))
			}
		}
	}
}
