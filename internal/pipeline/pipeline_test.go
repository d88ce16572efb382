package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/pipeline"
	"harmony/internal/services"
	"harmony/internal/store"
	"harmony/internal/testsupport"
)

// fakeLibrary serves records in id order with numeric page cursors.
type fakeLibrary struct {
	mu       sync.Mutex
	records  []metadata.Record
	pageSize int

	failPage  map[string]error
	failApply map[string]error
	onApply   func()

	fetched []string
	applied []string
}

func newFakeLibrary(records ...metadata.Record) *fakeLibrary {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b metadata.Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return &fakeLibrary{records: sorted, pageSize: 100, failPage: map[string]error{}, failApply: map[string]error{}}
}

func (l *fakeLibrary) FetchPage(_ context.Context, cursor string) (metadata.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetched = append(l.fetched, cursor)
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return metadata.Page{}, err
		}
		start = n
	}
	end := min(start+l.pageSize, len(l.records))
	page := metadata.Page{Total: len(l.records)}
	if end < len(l.records) {
		page.Next = strconv.Itoa(end)
	}
	if err, ok := l.failPage[cursor]; ok {
		delete(l.failPage, cursor)
		return metadata.Page{Next: page.Next}, err
	}
	for _, r := range l.records[start:end] {
		page.Records = append(page.Records, r.Clone())
	}
	return page, nil
}

func (l *fakeLibrary) Apply(_ context.Context, rec metadata.Record, field metadata.Field) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.failApply[rec.ID]; ok {
		return err
	}
	for i := range l.records {
		if l.records[i].ID == rec.ID {
			if err := l.records[i].Set(field, rec.Get(field)); err != nil {
				return err
			}
		}
	}
	l.applied = append(l.applied, rec.ID+"|"+string(field))
	if l.onApply != nil {
		l.onApply()
	}
	return nil
}

func (l *fakeLibrary) record(id string) metadata.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == id {
			return r.Clone()
		}
	}
	return metadata.Record{}
}

// library builds five Wheel of Time books where one disagrees on the
// publisher, an unrelated book and a record with an impossible year.
func library() *fakeLibrary {
	var records []metadata.Record
	for i := range 5 {
		opts := []testsupport.RecordOption{
			testsupport.Authors("Robert Jordan"),
			testsupport.Series("The Wheel of Time", float64(i+1)),
			testsupport.Publisher("Tor"),
			testsupport.Genres("Fantasy"),
		}
		if i == 0 {
			opts = append(opts, testsupport.Identifiers("9780812511819", "B002V0QK4C"))
		}
		if i == 4 {
			opts = append(opts, testsupport.Publisher("Macmillan Audio"))
		}
		records = append(records, testsupport.NewRecord(fmt.Sprintf("wot-%02d", i), fmt.Sprintf("Book %d", i+1), opts...))
	}
	records = append(records,
		testsupport.NewRecord("solo", "A Lone Story", testsupport.Authors("Jane Doe")),
		testsupport.NewRecord("zz-bad", "Time Travel", testsupport.Authors("Ann Other"), testsupport.Description("", "3023")),
	)
	return newFakeLibrary(records...)
}

func newCoordinator(t *testing.T, lib pipeline.Library, opts ...pipeline.Option) (*pipeline.Coordinator, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return pipeline.New(st, lib, opts...), st
}

func TestRunDryRunPreviewsWithoutWriting(t *testing.T) {
	lib := library()
	coord, st := newCoordinator(t, lib)

	rep, err := coord.Run(context.Background(), merge.ModeDryRun, 0.8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.TotalScanned != 7 || rep.InvalidRecords != 1 {
		t.Fatalf("scanned %d invalid %d, want 7 and 1", rep.TotalScanned, rep.InvalidRecords)
	}
	if len(lib.applied) != 0 {
		t.Fatalf("dry run must not write, got %v", lib.applied)
	}
	want := []merge.PreviewRow{{
		RecordID:   "wot-04",
		Field:      "publisher",
		Old:        "Macmillan Audio",
		New:        "Tor",
		Confidence: 0.9,
		Intent:     "would apply",
	}}
	if diff := cmp.Diff(want, rep.Changes); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}
	if rep.Updates.Skipped != 1 || rep.Updates.Applied != 0 || rep.Updates.Failed != 0 {
		t.Fatalf("unexpected update counts %+v", rep.Updates)
	}
	if rep.DiscrepanciesByField["publisher"] != 1 {
		t.Fatalf("unexpected discrepancies %v", rep.DiscrepanciesByField)
	}
	if rep.RelationshipsByKind["same_series"] == 0 || rep.RelationshipsByKind["same_author"] == 0 {
		t.Fatalf("expected series and author relationships, got %v", rep.RelationshipsByKind)
	}
	if !rep.Validation.Passed {
		t.Fatalf("expected validation to pass, got %+v", rep.Validation)
	}
	if rep.ManualReviewByReason[store.ReasonInvalidRecord] != 1 || rep.ManualReviewByReason[store.ReasonNeedsEnrichment] != 1 {
		t.Fatalf("unexpected review counts %v", rep.ManualReviewByReason)
	}
	if rep.CompletenessBefore != rep.CompletenessAfter {
		t.Fatalf("publisher swap must not move completeness: %v -> %v", rep.CompletenessBefore, rep.CompletenessAfter)
	}

	audit, err := st.ListAudit(context.Background(), store.AuditFilter{RunID: rep.RunID})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(audit) != 1 || audit[0].Outcome != store.OutcomeSkipped {
		t.Fatalf("expected one skipped audit row, got %+v", audit)
	}
	if pending, err := pipeline.LoadState(context.Background(), st); err != nil || pending != nil {
		t.Fatalf("expected checkpoint cleared, got %+v (%v)", pending, err)
	}
}

func TestRunApplyWritesAndIsIdempotent(t *testing.T) {
	lib := library()
	coord, st := newCoordinator(t, lib)
	ctx := context.Background()

	first, err := coord.Run(ctx, merge.ModeApply, 0.8)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Updates.Applied != 1 || first.Updates.ByField["publisher"] != 1 {
		t.Fatalf("unexpected first run updates %+v", first.Updates)
	}
	if got := lib.record("wot-04").Publisher; got != "Tor" {
		t.Fatalf("library publisher = %q, want Tor", got)
	}
	if !first.Validation.Passed {
		t.Fatalf("validation failed after first run: %+v", first.Validation)
	}
	audit, err := st.ListAudit(ctx, store.AuditFilter{RecordID: "wot-04"})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(audit) != 1 || audit[0].Outcome != store.OutcomeApplied || audit[0].Source != store.SourceHarmonize {
		t.Fatalf("unexpected audit %+v", audit)
	}

	second, err := coord.Run(ctx, merge.ModeApply, 0.8)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(second.Changes) != 0 || len(lib.applied) != 1 {
		t.Fatalf("second run changed data: %+v, library writes %v", second.Changes, lib.applied)
	}
	if second.RunID == first.RunID {
		t.Fatal("expected a fresh run id")
	}
	if !second.Validation.Passed {
		t.Fatalf("validation failed on second run: %+v", second.Validation)
	}
}

func TestRunIsolatesApplyFailures(t *testing.T) {
	lib := library()
	lib.failApply["wot-04"] = services.Wrap(services.ErrTransient, "merging", "apply", "library unavailable", nil)
	coord, st := newCoordinator(t, lib)

	rep, err := coord.Run(context.Background(), merge.ModeApply, 0.8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Updates.Failed != 1 || rep.Updates.Applied != 0 {
		t.Fatalf("unexpected updates %+v", rep.Updates)
	}
	if len(rep.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", rep.Failures)
	}
	f := rep.Failures[0]
	if f.RecordID != "wot-04" || f.Phase != "merging" || f.Kind != services.KindTransient {
		t.Fatalf("unexpected failure %+v", f)
	}
	audit, err := st.ListAudit(context.Background(), store.AuditFilter{RunID: rep.RunID})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(audit) != 1 || audit[0].Outcome != store.OutcomeFailed || audit[0].Error == "" {
		t.Fatalf("expected a failed audit row, got %+v", audit)
	}
}

func TestRunHoldsLowConfidenceDiscrepanciesForReview(t *testing.T) {
	lib := library()
	coord, _ := newCoordinator(t, lib)

	rep, err := coord.Run(context.Background(), merge.ModeApply, 0.95)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Changes) != 0 || len(lib.applied) != 0 {
		t.Fatalf("low confidence discrepancy must not merge: %+v", rep.Changes)
	}
	if got := rep.ManualReviewByReason[store.ReasonLowConfidenceResolution]; got != 5 {
		t.Fatalf("expected five records held for review, got %d (%v)", got, rep.ManualReviewByReason)
	}
	var high int
	for _, b := range rep.Histogram {
		if b.Label == "0.9-1.0" {
			high = b.Count
		}
	}
	if high != 1 {
		t.Fatalf("expected the discrepancy in the 0.9-1.0 bucket, got %+v", rep.Histogram)
	}
}

func TestRunSkipsUnreadablePage(t *testing.T) {
	lib := library()
	lib.pageSize = 2
	lib.failPage["2"] = services.Wrap(services.ErrTransient, "scanning", "fetch", "timeout", nil)
	coord, _ := newCoordinator(t, lib)

	rep, err := coord.Run(context.Background(), merge.ModeDryRun, 0.8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"", "2", "4", "6"}, lib.fetched); diff != "" {
		t.Fatalf("fetched pages (-want +got):\n%s", diff)
	}
	if rep.TotalScanned != 5 {
		t.Fatalf("expected 5 of 7 records scanned, got %d", rep.TotalScanned)
	}
	if len(rep.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", rep.Failures)
	}
	failure := rep.Failures[0]
	if failure.Phase != "scanning" || failure.Kind != services.KindTransient || !strings.Contains(failure.Message, "page 2") {
		t.Fatalf("expected a scanning failure naming page 2, got %+v", failure)
	}
}

func TestRunRecordsSkippedPageInCheckpoint(t *testing.T) {
	lib := library()
	lib.pageSize = 2
	lib.failPage["2"] = services.Wrap(services.ErrTransient, "scanning", "fetch", "timeout", nil)
	lib.failPage["4"] = services.Wrap(services.ErrValidation, "scanning", "fetch", "bad request", nil)
	coord, st := newCoordinator(t, lib)
	ctx := context.Background()

	if _, err := coord.Run(ctx, merge.ModeDryRun, 0.8); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	pending, err := pipeline.LoadState(ctx, st)
	if err != nil || pending == nil {
		t.Fatalf("expected pending state, got %+v (%v)", pending, err)
	}
	if pending.Cursor != "4" || len(pending.Scanned) != 2 || pending.Total != 7 {
		t.Fatalf("unexpected checkpoint %+v", pending)
	}
	if diff := cmp.Diff([]string{"2"}, pending.FailedPages); diff != "" {
		t.Fatalf("failed pages (-want +got):\n%s", diff)
	}
}

func TestRunResumesAfterPageFailure(t *testing.T) {
	lib := library()
	lib.pageSize = 2
	lib.failPage["6"] = services.Wrap(services.ErrTransient, "scanning", "fetch", "timeout", nil)

	var asked []pipeline.RunState
	coord, st := newCoordinator(t, lib, pipeline.WithResumeDecision(func(_ context.Context, pending pipeline.RunState) (bool, error) {
		asked = append(asked, pending)
		return true, nil
	}))
	ctx := context.Background()

	partial, err := coord.Run(ctx, merge.ModeDryRun, 0.8)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if partial == nil || partial.TotalScanned != 6 {
		t.Fatalf("expected partial report with six records, got %+v", partial)
	}
	pending, err := pipeline.LoadState(ctx, st)
	if err != nil || pending == nil {
		t.Fatalf("expected pending state, got %+v (%v)", pending, err)
	}
	if pending.Phase != pipeline.PhaseScanning || pending.Cursor != "6" || len(pending.Scanned) != 6 {
		t.Fatalf("unexpected checkpoint %+v", pending)
	}

	lib.fetched = nil
	rep, err := coord.Run(ctx, merge.ModeDryRun, 0.8)
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if len(asked) != 1 || asked[0].RunID != partial.RunID {
		t.Fatalf("expected one resume decision for %s, got %+v", partial.RunID, asked)
	}
	if rep.RunID != partial.RunID || !rep.Resumed {
		t.Fatalf("expected resumed run %s, got %s (resumed=%v)", partial.RunID, rep.RunID, rep.Resumed)
	}
	if diff := cmp.Diff([]string{"6"}, lib.fetched); diff != "" {
		t.Fatalf("resume refetched pages (-want +got):\n%s", diff)
	}
	if rep.TotalScanned != 7 {
		t.Fatalf("expected 7 scanned after resume, got %d", rep.TotalScanned)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Phase != "scanning" {
		t.Fatalf("expected the page failure to stay on record, got %+v", rep.Failures)
	}
}

func TestRunRestartDiscardsPendingRun(t *testing.T) {
	lib := library()
	lib.failPage[""] = services.Wrap(services.ErrTransient, "scanning", "fetch", "timeout", nil)
	coord, _ := newCoordinator(t, lib, pipeline.WithResumeDecision(func(context.Context, pipeline.RunState) (bool, error) {
		return false, nil
	}))

	partial, err := coord.Run(context.Background(), merge.ModeDryRun, 0.8)
	if err == nil {
		t.Fatal("expected first run to fail")
	}
	rep, err := coord.Run(context.Background(), merge.ModeDryRun, 0.8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID == partial.RunID || rep.Resumed {
		t.Fatalf("expected a new run, got %s resumed=%v", rep.RunID, rep.Resumed)
	}
	if len(rep.Failures) != 0 {
		t.Fatalf("restarted run must not inherit failures, got %+v", rep.Failures)
	}
}

func TestRunNeverReplaysAppliedChanges(t *testing.T) {
	lib := library()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lib.onApply = cancel
	coord, _ := newCoordinator(t, lib)

	if _, err := coord.Run(ctx, merge.ModeApply, 0.8); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(lib.applied) != 1 {
		t.Fatalf("expected one write before the interruption, got %v", lib.applied)
	}

	lib.onApply = nil
	rep, err := coord.Run(context.Background(), merge.ModeApply, 0.8)
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if len(lib.applied) != 1 {
		t.Fatalf("resume replayed an applied change: %v", lib.applied)
	}
	if rep.Updates.Applied != 1 {
		t.Fatalf("expected the interrupted change to count as applied, got %+v", rep.Updates)
	}
}

func TestRunRejectsInvalidThreshold(t *testing.T) {
	lib := library()
	coord, _ := newCoordinator(t, lib)
	for _, threshold := range []float64{-0.1, 1.5} {
		_, err := coord.Run(context.Background(), merge.ModeDryRun, threshold)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("threshold %v: expected configuration error, got %v", threshold, err)
		}
	}
	if len(lib.fetched) != 0 {
		t.Fatalf("no phase may start on invalid configuration, fetched %v", lib.fetched)
	}
}

func TestRunFailsOnDuplicateIDs(t *testing.T) {
	lib := newFakeLibrary(
		testsupport.NewRecord("a", "First", testsupport.Authors("X")),
		testsupport.NewRecord("a", "Second", testsupport.Authors("Y")),
	)
	coord, st := newCoordinator(t, lib)

	rep, err := coord.Run(context.Background(), merge.ModeDryRun, 0.8)
	if !errors.Is(err, services.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].RecordID != "a" || rep.Failures[0].Kind != services.KindDataIntegrity {
		t.Fatalf("unexpected failures %+v", rep.Failures)
	}
	pending, err := pipeline.LoadState(context.Background(), st)
	if err != nil || pending == nil {
		t.Fatalf("expected failed state to persist, got %+v (%v)", pending, err)
	}
	if pending.Phase != pipeline.PhaseFailed || pending.FailedPhase != pipeline.PhaseScanning {
		t.Fatalf("unexpected phases %s/%s", pending.Phase, pending.FailedPhase)
	}
}

func TestRunReportsProgress(t *testing.T) {
	lib := library()
	lib.pageSize = 3
	var (
		mu     sync.Mutex
		events []pipeline.Progress
	)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	coord, _ := newCoordinator(t, lib, pipeline.WithClock(clock), pipeline.WithProgress(func(p pipeline.Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	}))
	if _, err := coord.Run(context.Background(), merge.ModeDryRun, 0.8); err != nil {
		t.Fatalf("Run: %v", err)
	}

	byPhase := make(map[pipeline.Phase][]pipeline.Progress)
	for _, e := range events {
		byPhase[e.Phase] = append(byPhase[e.Phase], e)
	}
	scanning := byPhase[pipeline.PhaseScanning]
	if got := len(scanning); got != 7 {
		t.Fatalf("expected one scanning event per record, got %d", got)
	}
	for i, e := range scanning {
		if e.Total != 7 {
			t.Fatalf("scanning event %d: expected total 7, got %+v", i, e)
		}
		if i < len(scanning)-1 && e.ETA <= 0 {
			t.Fatalf("scanning event %d: expected an estimate before the last record, got %+v", i, e)
		}
	}
	if last := scanning[len(scanning)-1]; last.Percent != 100 || last.ETA != 0 {
		t.Fatalf("unexpected final scanning progress %+v", last)
	}
	merging := byPhase[pipeline.PhaseMerging]
	if len(merging) == 0 {
		t.Fatal("expected merging progress")
	}
	last := merging[len(merging)-1]
	if last.Current != last.Total || last.Percent != 100 || last.ETA != 0 {
		t.Fatalf("unexpected final merging progress %+v", last)
	}
	for _, e := range byPhase[pipeline.PhaseComparing] {
		if e.Total == 0 || e.Current > e.Total {
			t.Fatalf("bad comparing progress %+v", e)
		}
	}
}

func TestRestoreRevertsAppliedChanges(t *testing.T) {
	lib := library()
	coord, st := newCoordinator(t, lib)
	ctx := context.Background()

	rep, err := coord.Run(ctx, merge.ModeApply, 0.8)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	preview, err := coord.Restore(ctx, rep.RunID, "", merge.ModeDryRun)
	if err != nil {
		t.Fatalf("dry-run Restore: %v", err)
	}
	if len(preview.Changes) != 1 || preview.Changes[0].Outcome != store.OutcomeSkipped {
		t.Fatalf("unexpected restore preview %+v", preview.Changes)
	}
	if got := lib.record("wot-04").Publisher; got != "Tor" {
		t.Fatalf("dry-run restore wrote to the library: %q", got)
	}

	result, err := coord.Restore(ctx, rep.RunID, "wot-04", merge.ModeApply)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(result.Changes) != 1 || result.Changes[0].Outcome != store.OutcomeApplied {
		t.Fatalf("unexpected restore result %+v", result.Changes)
	}
	if got := lib.record("wot-04").Publisher; got != "Macmillan Audio" {
		t.Fatalf("publisher after restore = %q", got)
	}
	audit, err := st.ListAudit(ctx, store.AuditFilter{RunID: result.RunID})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(audit) != 1 || audit[0].Source != store.SourceRestore {
		t.Fatalf("expected a restore audit row, got %+v", audit)
	}

	if _, err := coord.Restore(ctx, "unknown-run", "", merge.ModeApply); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown run, got %v", err)
	}
}

func TestOmnibusFillsFromComponents(t *testing.T) {
	lib := newFakeLibrary(
		testsupport.NewRecord("omni", "The Complete Trilogy", testsupport.Authors("A. Writer"), testsupport.Genres("Adventure")),
		testsupport.NewRecord("c1", "Part One", testsupport.Authors("A. Writer"), testsupport.Series("Trilogy", 1), testsupport.Publisher("Orbit"), testsupport.Genres("Fantasy")),
		testsupport.NewRecord("c2", "Part Two", testsupport.Authors("A. Writer"), testsupport.Series("Trilogy", 2), testsupport.Publisher("Orbit"), testsupport.Genres("Fantasy", "Epic")),
	)
	lib.pageSize = 1
	coord, st := newCoordinator(t, lib)
	ctx := context.Background()

	result, err := coord.Omnibus(ctx, "omni", []string{"c1", "c2"}, merge.ModeApply)
	if err != nil {
		t.Fatalf("Omnibus: %v", err)
	}
	got := lib.record("omni")
	if got.Series != "Trilogy" || got.Publisher != "Orbit" {
		t.Fatalf("unexpected omnibus record %+v", got)
	}
	if diff := cmp.Diff([]string{"Adventure", "Epic", "Fantasy"}, got.Genres); diff != "" {
		t.Fatalf("genres mismatch (-want +got):\n%s", diff)
	}
	if len(result.Changes) != 3 {
		t.Fatalf("expected three changes, got %+v", result.Changes)
	}
	audit, err := st.ListAudit(ctx, store.AuditFilter{RunID: result.RunID})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	for _, e := range audit {
		if e.Source != store.SourceOmnibus || e.Outcome != store.OutcomeApplied {
			t.Fatalf("unexpected audit row %+v", e)
		}
	}

	if _, err := coord.Omnibus(ctx, "omni", []string{"missing"}, merge.ModeDryRun); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
