package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"harmony/internal/logging"
	"harmony/internal/metadata"
	"harmony/internal/relations"
	"harmony/internal/store"
)

// detect relates the usable records. The phase is a single unit: stored
// relationships are replaced wholesale, so a rerun after an interruption
// converges on the same result.
func (c *Coordinator) detect(ctx context.Context, state *RunState, logger *slog.Logger) error {
	records, _, err := c.scannedRecords(ctx, state)
	if err != nil {
		return err
	}
	result, err := relations.NewDetector(c.matcher, state.Threshold).Detect(records)
	if err != nil {
		return err
	}

	if err := c.store.ClearRelationships(ctx); err != nil {
		return err
	}
	for i, rel := range result.Active {
		if err := rel.Validate(); err != nil {
			return err
		}
		if err := c.store.PutRelationship(ctx, rel); err != nil {
			return err
		}
		c.reportProgress(ctx, state, i+1, len(result.Active), rel.SubjectID)
	}

	for _, rel := range result.Review {
		detail := fmt.Sprintf("%s with %s below threshold", rel.Kind, rel.ObjectID)
		if len(rel.Matched) > 0 {
			detail += " (" + strings.Join(rel.Matched, ", ") + ")"
		}
		for _, id := range []string{rel.SubjectID, rel.ObjectID} {
			if err := c.enqueue(ctx, state, store.ReviewEntry{
				RecordID:   id,
				Reason:     store.ReasonLowConfidenceRelationship,
				Field:      string(rel.Kind),
				Confidence: rel.Confidence,
				Detail:     detail,
			}); err != nil {
				return err
			}
		}
	}

	index := metadata.Index(records)
	for _, id := range result.Isolated {
		pos, ok := index[id]
		if !ok {
			continue
		}
		missing := metadata.MissingFields(records[pos])
		if len(missing) == 0 {
			continue
		}
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		if err := c.enqueue(ctx, state, store.ReviewEntry{
			RecordID:   id,
			Reason:     store.ReasonNeedsEnrichment,
			Confidence: records[pos].Completeness,
			Detail:     "no related records; missing " + strings.Join(names, ", "),
		}); err != nil {
			return err
		}
	}

	state.RelationshipsByKind = make(map[string]int, len(relations.Kinds()))
	for kind, n := range result.CountByKind() {
		state.RelationshipsByKind[string(kind)] = n
	}
	state.ReviewRelationships = len(result.Review)
	state.Groups = result.Groups
	logger.Info("relationships detected",
		logging.Int("records", len(records)),
		logging.Int("active", len(result.Active)),
		logging.Int("review", len(result.Review)),
		logging.Int("groups", len(result.Groups)),
		logging.Int("isolated", len(result.Isolated)),
	)
	return nil
}
