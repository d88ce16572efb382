package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"harmony/internal/compare"
	"harmony/internal/logging"
	"harmony/internal/metadata"
	"harmony/internal/relations"
	"harmony/internal/services"
)

// compareGroups classifies discrepancies group by group. Each group is a unit.
func (c *Coordinator) compareGroups(ctx context.Context, state *RunState, logger *slog.Logger) error {
	records, _, err := c.scannedRecords(ctx, state)
	if err != nil {
		return err
	}
	for i := state.GroupCursor; i < len(state.Groups); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		group := state.Groups[i]
		found := c.comparator.Compare(group, membersOf(group, records))
		for _, d := range found {
			if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
				return services.Wrap(services.ErrDataIntegrity, string(PhaseComparing), "classify",
					fmt.Sprintf("confidence %v for %s in %s outside [0,1]", d.Confidence, d.Field, d.GroupKey), nil)
			}
		}
		state.Discrepancies = append(state.Discrepancies, found...)
		state.GroupCursor = i + 1
		if len(found) > 0 {
			logger.Debug("group compared",
				logging.String("group", group.Key),
				logging.Int("discrepancies", len(found)),
			)
		}
		if err := c.checkpoint(ctx, state); err != nil {
			return err
		}
		c.reportProgress(ctx, state, i+1, len(state.Groups), "")
	}
	compare.Prioritize(state.Discrepancies)
	logger.Info("discrepancies found", logging.Int("count", len(state.Discrepancies)))
	return nil
}

func membersOf(group relations.Group, records []metadata.Record) []metadata.Record {
	out := make([]metadata.Record, 0, len(group.RecordIDs))
	for _, r := range records {
		if group.Contains(r.ID) {
			out = append(out, r)
		}
	}
	return out
}
