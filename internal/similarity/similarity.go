package similarity

import (
	"regexp"
	"strconv"
	"strings"

	"harmony/internal/textutil"
)

// IdentityThreshold is the minimum Similar score for two names to be treated
// as one identity.
const IdentityThreshold = 0.90

// DescriptionThreshold is the minimum normalized edit similarity at which two
// descriptions are considered the same content.
const DescriptionThreshold = 0.95

// Kind selects the equivalence rule used by SemanticallyEqual.
type Kind string

const (
	KindText        Kind = "text"
	KindDescription Kind = "description"
	KindName        Kind = "name"
	KindYear        Kind = "year"
	KindIdentifier  Kind = "identifier"
	KindSequence    Kind = "sequence"
	KindList        Kind = "list"
)

// Matcher is the contract consumed by the detector, comparator and validator.
type Matcher interface {
	Similar(a, b string) float64
	SemanticallyEqual(a, b string, kind Kind) bool
	EqualLists(a, b []string) bool
}

// Service is the default Matcher. It is stateless and safe for concurrent use.
type Service struct{}

// New returns the default similarity service.
func New() *Service {
	return &Service{}
}

// Similar scores two short name-like strings in [0,1]. The score is symmetric
// and a string always scores 1.0 against itself. Token order is ignored by
// also scoring the token-sorted forms and keeping the better result.
func (s *Service) Similar(a, b string) float64 {
	na, nb := textutil.Normalize(a), textutil.Normalize(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	score := Ratio(na, nb)
	if sorted := Ratio(textutil.SortedTokens(na), textutil.SortedTokens(nb)); sorted > score {
		score = sorted
	}
	return score
}

// SemanticallyEqual reports whether a and b carry the same meaning for the
// given field kind. Two blank values are equal; a blank and a non-blank value
// never are.
func (s *Service) SemanticallyEqual(a, b string, kind Kind) bool {
	blankA, blankB := strings.TrimSpace(a) == "", strings.TrimSpace(b) == ""
	if blankA || blankB {
		return blankA && blankB
	}

	switch kind {
	case KindYear:
		ya, okA := ExtractYear(a)
		yb, okB := ExtractYear(b)
		return okA && okB && ya == yb
	case KindIdentifier:
		return normalizeIdentifier(a) == normalizeIdentifier(b)
	case KindSequence:
		fa, errA := parseSequence(a)
		fb, errB := parseSequence(b)
		if errA != nil || errB != nil {
			return textutil.Normalize(a) == textutil.Normalize(b)
		}
		return fa == fb
	case KindDescription:
		na, nb := textutil.Normalize(a), textutil.Normalize(b)
		return na == nb || Ratio(na, nb) >= DescriptionThreshold
	case KindName:
		return s.Similar(a, b) >= IdentityThreshold
	case KindList:
		return s.EqualLists(splitList(a), splitList(b))
	default:
		return textutil.Normalize(a) == textutil.Normalize(b)
	}
}

// EqualLists compares two lists as sets of normalized elements.
func (s *Service) EqualLists(a, b []string) bool {
	setA, setB := NormalizedSet(a), NormalizedSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for key := range setA {
		if _, ok := setB[key]; !ok {
			return false
		}
	}
	return true
}

// NormalizedSet returns the distinct non-blank normalized elements of values.
func NormalizedSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		if key := textutil.Normalize(value); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

var yearPattern = regexp.MustCompile(`\b(1[0-9]{3}|2[0-9]{3})\b`)

// ExtractYear returns the first four-digit year found in value.
func ExtractYear(value string) (int, bool) {
	match := yearPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, false
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

func normalizeIdentifier(value string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(value) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseSequence(value string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", "."), 64)
}

func splitList(value string) []string {
	return strings.Split(value, ",")
}
