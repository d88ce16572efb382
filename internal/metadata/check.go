package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	minPublicationYear = 1000
	maxPublicationYear = 2100
)

// CheckRecord returns the structural problems of a record. An empty result
// means the record is usable; problems route the record to manual review.
func CheckRecord(r Record) []string {
	var problems []string
	if strings.TrimSpace(r.ID) == "" {
		problems = append(problems, "record id is empty")
	}
	if strings.TrimSpace(r.Title) == "" {
		problems = append(problems, "title is empty")
	}
	if len(r.Authors) > 0 && !r.Has(FieldAuthors) {
		problems = append(problems, "authors list contains only blank names")
	}
	if r.Completeness < 0 || r.Completeness > 1 {
		problems = append(problems, fmt.Sprintf("completeness %.4f outside [0,1]", r.Completeness))
	}
	if year := strings.TrimSpace(r.PublicationYear); year != "" {
		if y, err := strconv.Atoi(year); err == nil && (y < minPublicationYear || y > maxPublicationYear) {
			problems = append(problems, fmt.Sprintf("publication year %d outside %d-%d", y, minPublicationYear, maxPublicationYear))
		}
	}
	if r.SeriesSequence != nil && *r.SeriesSequence < 0 {
		problems = append(problems, "series sequence is negative")
	}
	return problems
}
