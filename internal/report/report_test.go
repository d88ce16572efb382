package report_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"harmony/internal/consistency"
	"harmony/internal/report"
)

func sampleReport() *report.CompletionReport {
	started := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	r := &report.CompletionReport{
		RunID:                "run-1",
		Mode:                 "dry_run",
		Threshold:            0.8,
		StartedAt:            started,
		TotalScanned:         12,
		RelationshipsByKind:  map[string]int{"same_author": 3, "same_series": 2},
		DiscrepanciesByField: map[string]int{"series": 1},
		Histogram:            report.Histogram([]float64{0.95}),
		ManualReviewByReason: map[string]int{"needs_enrichment": 2},
		ManualReview:         2,
		CompletenessBefore:   0.61,
		CompletenessAfter:    0.64,
		Validation:           consistency.Result{Passed: true},
		Updates:              report.Updates{Skipped: 1, ByField: map[string]int{"series": 1}},
		Failures:             []report.Failure{{RecordID: "b1", Phase: "merging", Kind: "transient_io", Message: "timeout"}},
	}
	r.SetDuration(started.Add(90 * time.Second))
	return r
}

func TestHistogramBuckets(t *testing.T) {
	got := report.Histogram([]float64{0.1, 0.5, 0.69, 0.7, 0.79, 0.8, 0.85, 0.9, 1.0})
	want := []report.Bucket{
		{Label: "<0.5", Count: 1},
		{Label: "0.5-0.7", Count: 2},
		{Label: "0.7-0.8", Count: 2},
		{Label: "0.8-0.9", Count: 2},
		{Label: "0.9-1.0", Count: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("histogram mismatch (-want +got):\n%s", diff)
	}

	empty := report.Histogram(nil)
	if len(empty) != 5 {
		t.Fatalf("expected every bucket even without data, got %d", len(empty))
	}
}

func TestSetDuration(t *testing.T) {
	r := sampleReport()
	if r.Duration != "1m30s" {
		t.Fatalf("unexpected duration %q", r.Duration)
	}
	if r.Seconds != 90 {
		t.Fatalf("unexpected seconds %v", r.Seconds)
	}
	r.SetDuration(r.StartedAt.Add(-time.Second))
	if r.Seconds != 0 {
		t.Fatalf("expected clock skew to clamp to zero, got %v", r.Seconds)
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 5, 6, 0, time.UTC)
	if got := report.FileName("", at, "json"); got != "harmony_report_20260304_100506.json" {
		t.Fatalf("unexpected default file name %q", got)
	}
	if got := report.FileName("nightly run: books", at, "yaml"); got != "nightly_run-_books_20260304_100506.yaml" {
		t.Fatalf("unexpected sanitized file name %q", got)
	}
}

func TestWriteJSONAndYAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := sampleReport()

	paths, err := report.Write(dir, "", r, []string{"json", "yaml"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected two files, got %v", paths)
	}
	if !strings.HasSuffix(paths[0], ".json") || !strings.HasSuffix(paths[1], ".yaml") {
		t.Fatalf("unexpected paths %v", paths)
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded report.CompletionReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.TotalScanned != 12 || decoded.RelationshipsByKind["same_author"] != 3 {
		t.Fatalf("unexpected decoded report %+v", decoded)
	}
	if !strings.Contains(string(data), `"average_completeness_after": 0.64`) {
		t.Fatalf("json missing completeness field:\n%s", data)
	}

	data, err = os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read yaml: %v", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if raw["run_id"] != "run-1" || raw["total_scanned"] != 12 {
		t.Fatalf("unexpected yaml content:\n%s", data)
	}
	failures, ok := raw["failures"].([]any)
	if !ok || len(failures) != 1 {
		t.Fatalf("expected one failure in yaml, got %v", raw["failures"])
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if _, err := report.Write(t.TempDir(), "", sampleReport(), []string{"csv"}); err == nil {
		t.Fatal("expected error for csv format")
	}
}

func TestSummaryRows(t *testing.T) {
	r := sampleReport()
	r.Validation = consistency.Result{Passed: false, Failures: []consistency.Failure{{Check: consistency.CheckSeries, Reason: "x"}}}
	rows := r.Summary()
	found := false
	for _, row := range rows {
		if row[0] == "Validation" {
			found = true
			if row[1] != "failed (1)" {
				t.Fatalf("unexpected validation row %q", row[1])
			}
		}
	}
	if !found {
		t.Fatal("summary missing validation row")
	}
	if keys := report.SortedKeys(r.RelationshipsByKind); strings.Join(keys, ",") != "same_author,same_series" {
		t.Fatalf("unexpected sorted keys %v", keys)
	}
}
