package report

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"harmony/internal/consistency"
	"harmony/internal/merge"
)

// CompletionReport summarizes one harmonization run.
type CompletionReport struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Mode       string    `json:"mode" yaml:"mode"`
	Threshold  float64   `json:"confidence_threshold" yaml:"confidence_threshold"`
	Resumed    bool      `json:"resumed,omitempty" yaml:"resumed,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Duration   string    `json:"duration" yaml:"duration"`
	Seconds    float64   `json:"duration_seconds" yaml:"duration_seconds"`

	TotalScanned   int `json:"total_scanned" yaml:"total_scanned"`
	InvalidRecords int `json:"invalid_records" yaml:"invalid_records"`

	RelationshipsByKind map[string]int `json:"relationships_by_kind" yaml:"relationships_by_kind"`
	ReviewRelationships int            `json:"review_relationships" yaml:"review_relationships"`
	Groups              int            `json:"groups" yaml:"groups"`

	DiscrepanciesByField map[string]int `json:"discrepancies_by_field" yaml:"discrepancies_by_field"`
	Histogram            []Bucket       `json:"confidence_histogram" yaml:"confidence_histogram"`

	ManualReview         int            `json:"manual_review" yaml:"manual_review"`
	ManualReviewByReason map[string]int `json:"manual_review_by_reason" yaml:"manual_review_by_reason"`

	CompletenessBefore float64 `json:"average_completeness_before" yaml:"average_completeness_before"`
	CompletenessAfter  float64 `json:"average_completeness_after" yaml:"average_completeness_after"`

	Validation consistency.Result `json:"validation" yaml:"validation"`
	Updates    Updates            `json:"updates" yaml:"updates"`
	Changes    []merge.PreviewRow `json:"changes,omitempty" yaml:"changes,omitempty"`
	Failures   []Failure          `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Updates counts change outcomes.
type Updates struct {
	Applied int            `json:"applied" yaml:"applied"`
	Skipped int            `json:"skipped" yaml:"skipped"`
	Failed  int            `json:"failed" yaml:"failed"`
	ByField map[string]int `json:"by_field" yaml:"by_field"`
}

// Failure attributes one error to a record and phase.
type Failure struct {
	RecordID string `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Phase    string `json:"phase" yaml:"phase"`
	Kind     string `json:"kind" yaml:"kind"`
	Message  string `json:"message" yaml:"message"`
}

// SetDuration stamps the finish time and the elapsed duration.
func (r *CompletionReport) SetDuration(finished time.Time) {
	r.FinishedAt = finished
	elapsed := finished.Sub(r.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	r.Duration = elapsed.Round(time.Millisecond).String()
	r.Seconds = elapsed.Seconds()
}

// ValidationPassed reports the overall validation verdict.
func (r *CompletionReport) ValidationPassed() bool {
	return r.Validation.Passed
}

// Summary returns label/value rows in display order.
func (r *CompletionReport) Summary() [][2]string {
	validation := "passed"
	if !r.Validation.Passed {
		validation = fmt.Sprintf("failed (%d)", len(r.Validation.Failures))
	}
	return [][2]string{
		{"Run", r.RunID},
		{"Mode", r.Mode},
		{"Threshold", fmt.Sprintf("%.2f", r.Threshold)},
		{"Records scanned", fmt.Sprintf("%d", r.TotalScanned)},
		{"Invalid records", fmt.Sprintf("%d", r.InvalidRecords)},
		{"Groups", fmt.Sprintf("%d", r.Groups)},
		{"Manual review", fmt.Sprintf("%d", r.ManualReview)},
		{"Completeness", fmt.Sprintf("%.4f -> %.4f", r.CompletenessBefore, r.CompletenessAfter)},
		{"Updates", fmt.Sprintf("%d applied, %d skipped, %d failed", r.Updates.Applied, r.Updates.Skipped, r.Updates.Failed)},
		{"Validation", validation},
		{"Duration", r.Duration},
	}
}

// SortedKeys returns the keys of a count map in lexical order.
func SortedKeys(counts map[string]int) []string {
	return slices.Sorted(maps.Keys(counts))
}
