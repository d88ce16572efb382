package pipeline

import (
	"context"
	"slices"

	"harmony/internal/compare"
	"harmony/internal/consistency"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/report"
	"harmony/internal/store"
)

// buildReport summarizes the run from its state and the store.
func (c *Coordinator) buildReport(ctx context.Context, state *RunState) (*report.CompletionReport, error) {
	rep := &report.CompletionReport{
		RunID:                state.RunID,
		Mode:                 string(state.Mode),
		Threshold:            state.Threshold,
		Resumed:              state.Resumes > 0,
		StartedAt:            state.StartedAt,
		TotalScanned:         len(state.Scanned),
		InvalidRecords:       len(state.Invalid),
		RelationshipsByKind:  make(map[string]int),
		ReviewRelationships:  state.ReviewRelationships,
		Groups:               len(state.Groups),
		DiscrepanciesByField: make(map[string]int),
		ManualReviewByReason: make(map[string]int),
		Updates:              report.Updates{ByField: make(map[string]int)},
		Failures:             slices.Clone(state.Failures),
	}
	for kind, n := range state.RelationshipsByKind {
		rep.RelationshipsByKind[kind] = n
	}
	for field, n := range compare.CountByField(state.Discrepancies) {
		rep.DiscrepanciesByField[string(field)] = n
	}
	confidences := make([]float64, len(state.Discrepancies))
	for i, d := range state.Discrepancies {
		confidences[i] = d.Confidence
	}
	rep.Histogram = report.Histogram(confidences)

	changes := make([]merge.Change, 0, len(state.Changes))
	for _, o := range state.Changes {
		changes = append(changes, o.Change)
		switch o.Outcome {
		case store.OutcomeApplied:
			rep.Updates.Applied++
		case store.OutcomeSkipped:
			rep.Updates.Skipped++
		case store.OutcomeFailed:
			rep.Updates.Failed++
		}
		if o.Landed() {
			rep.Updates.ByField[string(o.Change.Field)]++
		}
	}
	rep.Changes = merge.Preview(changes)

	if state.Validation != nil {
		rep.Validation = *state.Validation
	} else {
		rep.Validation = consistency.Result{Passed: false}
	}

	entries, err := c.store.ListReview(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.RunID != state.RunID {
			continue
		}
		rep.ManualReview++
		rep.ManualReviewByReason[e.Reason]++
	}

	_, all, err := c.scannedRecords(ctx, state)
	if err != nil {
		return nil, err
	}
	after, err := merge.Project(all, state.landedChanges())
	if err != nil {
		return nil, err
	}
	rep.CompletenessBefore = averageCompleteness(all)
	rep.CompletenessAfter = averageCompleteness(after)

	rep.SetDuration(c.now())
	return rep, nil
}

// partialReport is a best-effort report for a run that stopped early.
func (c *Coordinator) partialReport(ctx context.Context, state *RunState) *report.CompletionReport {
	rep, err := c.buildReport(context.WithoutCancel(ctx), state)
	if err != nil {
		rep = &report.CompletionReport{
			RunID:        state.RunID,
			Mode:         string(state.Mode),
			Threshold:    state.Threshold,
			StartedAt:    state.StartedAt,
			TotalScanned: len(state.Scanned),
			Failures:     slices.Clone(state.Failures),
		}
		rep.SetDuration(c.now())
	}
	return rep
}

func averageCompleteness(records []metadata.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var total float64
	for _, r := range records {
		total += r.Completeness
	}
	return metadata.Round(total / float64(len(records)))
}
