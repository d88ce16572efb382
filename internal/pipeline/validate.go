package pipeline

import (
	"context"
	"log/slog"

	"harmony/internal/consistency"
	"harmony/internal/logging"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/relations"
	"harmony/internal/services"
)

// validate checks the projected post-run state against the pre-run
// snapshots. Failures are reported, never corrected or rolled back.
func (c *Coordinator) validate(ctx context.Context, state *RunState, logger *slog.Logger) error {
	before, all, err := c.scannedRecords(ctx, state)
	if err != nil {
		return err
	}
	after, err := merge.Project(before, state.landedChanges())
	if err != nil {
		return services.Wrap(services.ErrDataIntegrity, string(PhaseValidating), "project", "replay recorded changes", err)
	}

	results := make([]consistency.Result, 0, len(state.Groups)+2)
	grouped := make(map[string]struct{})
	for i, group := range state.Groups {
		results = append(results, c.validator.Check(group, before, after))
		for _, id := range group.RecordIDs {
			grouped[id] = struct{}{}
		}
		c.reportProgress(ctx, state, i+1, len(state.Groups), "")
	}
	results = append(results, c.validator.CheckRecords(ungrouped(before, grouped), ungrouped(after, grouped)))

	rels, err := c.storedRelationships(ctx, before)
	if err != nil {
		return err
	}
	results = append(results, c.validator.CheckRelationships(rels, all))

	combined := consistency.Combine(results...)
	state.Validation = &combined
	if combined.Passed {
		logger.Info("validation passed", logging.Int("groups", len(state.Groups)))
		return nil
	}
	for _, f := range combined.Failures {
		logging.WarnWithContext(logger, "validation failure", "validation_failure",
			logging.String("check", string(f.Check)),
			logging.String("group", f.GroupKey),
			logging.String(logging.FieldRecordID, f.RecordID),
			logging.String("reason", f.Reason),
			logging.String(logging.FieldImpact, "reported only; changes are not rolled back"),
			logging.String(logging.FieldErrorHint, "inspect the listed records and the audit log"),
		)
	}
	return nil
}

func ungrouped(records []metadata.Record, grouped map[string]struct{}) []metadata.Record {
	out := make([]metadata.Record, 0, len(records))
	for _, r := range records {
		if _, ok := grouped[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// storedRelationships reads back the relationships of records, each once.
func (c *Coordinator) storedRelationships(ctx context.Context, records []metadata.Record) ([]relations.Relationship, error) {
	seen := make(map[string]struct{})
	var out []relations.Relationship
	for _, r := range records {
		rels, err := c.store.GetRelationships(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if _, ok := seen[rel.Key()]; ok {
				continue
			}
			seen[rel.Key()] = struct{}{}
			out = append(out, rel)
		}
	}
	return out, nil
}
