package relations

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"harmony/internal/services"
)

// Kind classifies a relationship.
type Kind string

const (
	KindSameAuthor   Kind = "same_author"
	KindSameSeries   Kind = "same_series"
	KindSameUniverse Kind = "same_universe"
	KindSameNarrator Kind = "same_narrator"
)

// Kinds lists relationship kinds in report order.
func Kinds() []Kind {
	return []Kind{KindSameAuthor, KindSameSeries, KindSameUniverse, KindSameNarrator}
}

// Relationship links two records. SubjectID always sorts before ObjectID.
type Relationship struct {
	SubjectID  string   `json:"subject_id"`
	ObjectID   string   `json:"object_id"`
	Kind       Kind     `json:"kind"`
	Confidence float64  `json:"confidence"`
	GroupKey   string   `json:"group_key,omitempty"`
	Matched    []string `json:"matched,omitempty"`
}

// Key identifies a relationship independent of its confidence.
func (r Relationship) Key() string {
	return string(r.Kind) + "|" + r.SubjectID + "|" + r.ObjectID
}

// Validate rejects relationships that cannot be trusted by later phases.
func (r Relationship) Validate() error {
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return services.Wrap(services.ErrDataIntegrity, "detecting", "relationship",
			fmt.Sprintf("confidence %v for %s %s/%s outside [0,1]", r.Confidence, r.Kind, r.SubjectID, r.ObjectID), nil)
	}
	if r.SubjectID == "" || r.ObjectID == "" || r.SubjectID == r.ObjectID {
		return services.Wrap(services.ErrDataIntegrity, "detecting", "relationship",
			fmt.Sprintf("invalid endpoints %q/%q", r.SubjectID, r.ObjectID), nil)
	}
	return nil
}

func newRelationship(a, b string, kind Kind, confidence float64, groupKey string, matched ...string) Relationship {
	if b < a {
		a, b = b, a
	}
	return Relationship{
		SubjectID:  a,
		ObjectID:   b,
		Kind:       kind,
		Confidence: roundConfidence(confidence),
		GroupKey:   groupKey,
		Matched:    dedupeStrings(matched),
	}
}

// Partition splits relationships into those at or above threshold and the
// rest, which are only fit for manual review.
func Partition(rels []Relationship, threshold float64) (active, review []Relationship) {
	for _, rel := range rels {
		if rel.Confidence >= threshold {
			active = append(active, rel)
		} else {
			review = append(review, rel)
		}
	}
	return active, review
}

// SortRelationships orders by kind, subject and object.
func SortRelationships(rels []Relationship) {
	slices.SortFunc(rels, func(a, b Relationship) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.SubjectID, b.SubjectID),
			cmp.Compare(a.ObjectID, b.ObjectID),
		)
	})
}

// relationshipSet keeps the strongest relationship per key.
type relationshipSet struct {
	byKey map[string]Relationship
}

func newRelationshipSet() *relationshipSet {
	return &relationshipSet{byKey: make(map[string]Relationship)}
}

func (s *relationshipSet) add(rel Relationship) {
	if existing, ok := s.byKey[rel.Key()]; ok && existing.Confidence >= rel.Confidence {
		return
	}
	s.byKey[rel.Key()] = rel
}

func (s *relationshipSet) has(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

func (s *relationshipSet) list() []Relationship {
	out := make([]Relationship, 0, len(s.byKey))
	for _, rel := range s.byKey {
		out = append(out, rel)
	}
	SortRelationships(out)
	return out
}

func roundConfidence(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
