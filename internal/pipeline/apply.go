package pipeline

import (
	"context"
	"fmt"

	"harmony/internal/compare"
	"harmony/internal/logging"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/services"
	"harmony/internal/store"
)

// applyChange carries one change through to the library and the audit log.
// current holds the latest known state of every record and is updated when
// the change lands. Keys in replay were applied before an interruption and
// are recorded without calling the library again.
func (c *Coordinator) applyChange(
	ctx context.Context,
	runID string,
	mode merge.Mode,
	change merge.Change,
	current map[string]metadata.Record,
	replay map[string]struct{},
	source string,
) (ChangeOutcome, error) {
	rec, ok := current[change.RecordID]
	if !ok {
		return ChangeOutcome{}, services.Wrap(services.ErrDataIntegrity, string(PhaseMerging), "apply",
			fmt.Sprintf("change targets unknown record %q", change.RecordID), nil)
	}
	recCtx := services.WithRecordID(ctx, change.RecordID)
	logger := logging.WithContext(recCtx, c.logger)

	outcome := ChangeOutcome{Change: change}
	entry := store.AuditEntry{
		RunID:      runID,
		Timestamp:  c.now(),
		RecordID:   change.RecordID,
		Field:      string(change.Field),
		GroupKey:   change.GroupKey,
		Old:        change.Old,
		New:        change.New,
		Confidence: change.Confidence,
		Source:     source,
	}

	updated := rec.Clone()
	if err := updated.Set(change.Field, change.New); err != nil {
		err = services.Wrap(services.ErrValidation, string(PhaseMerging), "apply", "", err)
		outcome.Outcome = store.OutcomeFailed
		outcome.Kind = services.Classify(err)
		outcome.Error = err.Error()
	} else {
		updated.Completeness = metadata.Score(updated)
		key := change.Key()
		_, replayed := replay[key]
		switch {
		case mode == merge.ModeDryRun:
			outcome.Outcome = store.OutcomeSkipped
		case replayed:
			delete(replay, key)
			outcome.Outcome = store.OutcomeApplied
			current[change.RecordID] = updated
			logger.Debug("change already applied", logging.String("field", string(change.Field)))
			return outcome, nil
		default:
			if err := c.library.Apply(recCtx, updated, change.Field); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ChangeOutcome{}, ctxErr
				}
				outcome.Outcome = store.OutcomeFailed
				outcome.Kind = services.Classify(err)
				outcome.Error = err.Error()
			} else {
				outcome.Outcome = store.OutcomeApplied
			}
		}
	}

	entry.Outcome = outcome.Outcome
	entry.Error = outcome.Error
	// The write already reached the library; record it even when the run is
	// being interrupted.
	if err := c.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		return ChangeOutcome{}, withRecord(change.RecordID, err)
	}

	switch outcome.Outcome {
	case store.OutcomeFailed:
		logging.WarnWithContext(logger, "update failed", "update_failed",
			logging.String("field", string(change.Field)),
			logging.String(logging.FieldErrorKind, outcome.Kind),
			logging.String("error", outcome.Error),
			logging.String(logging.FieldErrorHint, "rerun once the library is reachable; failed updates are retried"),
		)
		return outcome, nil
	case store.OutcomeApplied:
		if err := c.store.PutScore(context.WithoutCancel(ctx), updated.ID, updated.Completeness); err != nil {
			return ChangeOutcome{}, err
		}
	}
	current[change.RecordID] = updated
	logger.Debug("change recorded",
		logging.String("field", string(change.Field)),
		logging.String("old", change.Old.String()),
		logging.String("new", change.New.String()),
		logging.String("outcome", outcome.Outcome),
		logging.Float64("confidence", change.Confidence),
	)
	return outcome, nil
}

// unrecordedApplies returns the keys the audit log shows as applied in the
// run that the checkpoint does not know about yet.
func (c *Coordinator) unrecordedApplies(ctx context.Context, state *RunState) (map[string]struct{}, error) {
	applied, err := c.store.AppliedKeys(ctx, state.RunID)
	if err != nil {
		return nil, err
	}
	for _, o := range state.Changes {
		if o.Outcome == store.OutcomeApplied {
			delete(applied, o.Change.Key())
		}
	}
	return applied, nil
}

func firstRecord(d compare.Discrepancy) string {
	if len(d.Candidates) > 0 {
		return d.Candidates[0]
	}
	if len(d.Observed) > 0 {
		return d.Observed[0].RecordID
	}
	return ""
}
