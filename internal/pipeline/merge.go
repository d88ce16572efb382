package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"harmony/internal/compare"
	"harmony/internal/logging"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/report"
	"harmony/internal/services"
	"harmony/internal/store"
)

// resolve turns accepted discrepancies into changes and, in apply mode,
// writes them to the library. Each discrepancy is a unit; its outcomes and
// the cursor reach the checkpoint together.
func (c *Coordinator) resolve(ctx context.Context, state *RunState, logger *slog.Logger) error {
	records, _, err := c.scannedRecords(ctx, state)
	if err != nil {
		return err
	}
	projected, err := merge.Project(records, state.landedChanges())
	if err != nil {
		return services.Wrap(services.ErrDataIntegrity, string(PhaseMerging), "project", "replay recorded changes", err)
	}
	current := make(map[string]metadata.Record, len(projected))
	for _, r := range projected {
		current[r.ID] = r
	}
	scores, err := c.store.Scores(ctx)
	if err != nil {
		return err
	}
	replay, err := c.unrecordedApplies(ctx, state)
	if err != nil {
		return err
	}

	for i := state.MergeCursor; i < len(state.Discrepancies); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := state.Discrepancies[i]
		outcomes, failures, err := c.resolveOne(ctx, state, d, current, scores, replay, logger)
		if err != nil {
			return err
		}
		state.Changes = append(state.Changes, outcomes...)
		state.Failures = append(state.Failures, failures...)
		state.MergeCursor = i + 1
		if err := c.checkpoint(ctx, state); err != nil {
			return err
		}
		c.reportProgress(ctx, state, i+1, len(state.Discrepancies), firstRecord(d))
	}
	return nil
}

func (c *Coordinator) resolveOne(
	ctx context.Context,
	state *RunState,
	d compare.Discrepancy,
	current map[string]metadata.Record,
	scores map[string]float64,
	replay map[string]struct{},
	logger *slog.Logger,
) ([]ChangeOutcome, []report.Failure, error) {
	if d.Confidence < state.Threshold {
		for _, id := range d.RecordIDs() {
			if err := c.enqueue(ctx, state, store.ReviewEntry{
				RecordID:   id,
				Reason:     store.ReasonLowConfidenceResolution,
				Field:      string(d.Field),
				Confidence: d.Confidence,
				Detail:     fmt.Sprintf("%s %s in %s", d.Kind, d.Field, d.GroupKey),
			}); err != nil {
				return nil, nil, err
			}
		}
		logger.Debug("discrepancy held for review",
			logging.String("group", d.GroupKey),
			logging.String("field", string(d.Field)),
			logging.Float64("confidence", d.Confidence),
		)
		return nil, nil, nil
	}

	members := make([]metadata.Record, 0, len(d.Observed))
	for _, id := range d.RecordIDs() {
		if rec, ok := current[id]; ok {
			members = append(members, rec)
		}
	}
	res, err := c.resolver.Resolve(d, members, scores, state.Mode)
	if err != nil {
		if services.IsFatal(err) {
			return nil, nil, err
		}
		logging.WarnWithContext(logger, "discrepancy not resolved", "resolve_failed",
			logging.String("group", d.GroupKey),
			logging.String("field", string(d.Field)),
			logging.Error(err),
		)
		return nil, []report.Failure{newFailure(firstRecord(d), PhaseMerging, err)}, nil
	}
	if res.Skipped != "" {
		logger.Debug("discrepancy skipped",
			logging.String("group", d.GroupKey),
			logging.String("field", string(d.Field)),
			logging.String("reason", res.Skipped),
		)
		return nil, nil, nil
	}

	var (
		outcomes []ChangeOutcome
		failures []report.Failure
	)
	for _, change := range res.Changes {
		outcome, err := c.applyChange(ctx, state.RunID, state.Mode, change, current, replay, store.SourceHarmonize)
		if err != nil {
			return nil, nil, err
		}
		if outcome.Outcome == store.OutcomeFailed {
			failures = append(failures, outcome.failure(PhaseMerging))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, failures, nil
}
