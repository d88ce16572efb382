package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"harmony/internal/logging"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/services"
	"harmony/internal/store"
)

// RestoreResult lists what a restore did.
type RestoreResult struct {
	RunID       string          `json:"run_id"`
	SourceRunID string          `json:"source_run_id"`
	Changes     []ChangeOutcome `json:"changes"`
}

// Restore puts back the pre-run values of every field a run applied. With
// recordID set only that record is restored. Fields whose latest written
// value already equals the snapshot are left alone.
func (c *Coordinator) Restore(ctx context.Context, sourceRunID, recordID string, mode merge.Mode) (*RestoreResult, error) {
	if sourceRunID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "restore", "select run", "a run id is required", nil)
	}
	entries, err := c.store.ListAudit(ctx, store.AuditFilter{RunID: sourceRunID, RecordID: recordID})
	if err != nil {
		return nil, err
	}

	// Latest applied value per record field, in first-write order.
	type written struct {
		recordID string
		field    metadata.Field
		value    metadata.Value
	}
	var order []string
	latest := make(map[string]*written)
	for _, e := range entries {
		if e.Outcome != store.OutcomeApplied || e.Source == store.SourceRestore {
			continue
		}
		key := e.RecordID + "|" + e.Field
		if w, ok := latest[key]; ok {
			w.value = e.New
			continue
		}
		order = append(order, key)
		latest[key] = &written{recordID: e.RecordID, field: metadata.Field(e.Field), value: e.New}
	}
	if len(order) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "restore", "select changes",
			fmt.Sprintf("run %s has no applied changes to restore", sourceRunID), nil)
	}
	slices.Sort(order)

	result := &RestoreResult{RunID: uuid.NewString(), SourceRunID: sourceRunID}
	logger := logging.WithContext(services.WithRunID(ctx, result.RunID), c.logger)
	logger.Info("restore started",
		logging.String(logging.FieldEventType, "restore_start"),
		logging.String("source_run_id", sourceRunID),
		logging.Int("fields", len(order)),
		logging.String("mode", string(mode)),
	)

	current := make(map[string]metadata.Record)
	for _, key := range order {
		w := latest[key]
		if _, ok := current[w.recordID]; !ok {
			snap, err := c.store.Snapshot(ctx, sourceRunID, w.recordID)
			if err != nil {
				return result, err
			}
			if snap == nil {
				return result, services.Wrap(services.ErrNotFound, "restore", "load snapshot",
					fmt.Sprintf("no snapshot of %s in run %s", w.recordID, sourceRunID), nil)
			}
			current[w.recordID] = *snap
		}
		rec := current[w.recordID]
		original := rec.Get(w.field)
		if original.Equal(w.value) {
			continue
		}
		// The record in current carries the written value until the restore
		// lands, so applyChange sends the snapshot value.
		live := rec.Clone()
		if err := live.Set(w.field, w.value); err != nil {
			return result, services.Wrap(services.ErrDataIntegrity, "restore", "replay", "", err)
		}
		current[w.recordID] = live
		change := merge.Change{
			RecordID:   w.recordID,
			Field:      w.field,
			Old:        w.value,
			New:        original,
			Confidence: 1,
			GroupKey:   "restore:" + sourceRunID,
			Kind:       "restore",
			Mode:       mode,
		}
		outcome, err := c.applyChange(ctx, result.RunID, mode, change, current, nil, store.SourceRestore)
		if err != nil {
			return result, err
		}
		result.Changes = append(result.Changes, outcome)
	}
	logger.Info("restore completed",
		logging.String(logging.FieldEventType, "restore_complete"),
		logging.Int("changes", len(result.Changes)),
	)
	return result, nil
}
