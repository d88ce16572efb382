package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"harmony/internal/logging"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/services"
	"harmony/internal/store"
)

// OmnibusResult lists the changes made to an omnibus edition.
type OmnibusResult struct {
	RunID   string          `json:"run_id"`
	Record  metadata.Record `json:"record"`
	Changes []ChangeOutcome `json:"changes"`
}

// Omnibus fills an omnibus edition from its component books.
func (c *Coordinator) Omnibus(ctx context.Context, omnibusID string, componentIDs []string, mode merge.Mode) (*OmnibusResult, error) {
	omnibusID = strings.TrimSpace(omnibusID)
	if omnibusID == "" || len(componentIDs) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "omnibus", "select records",
			"an omnibus id and at least one component id are required", nil)
	}
	wanted := map[string]struct{}{omnibusID: {}}
	for _, id := range componentIDs {
		wanted[strings.TrimSpace(id)] = struct{}{}
	}
	found, err := c.fetchRecords(ctx, wanted)
	if err != nil {
		return nil, err
	}
	var missing []string
	for id := range wanted {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, services.Wrap(services.ErrNotFound, "omnibus", "select records",
			fmt.Sprintf("records not in library: %s", strings.Join(missing, ", ")), nil)
	}

	components := make([]metadata.Record, 0, len(componentIDs))
	for _, id := range componentIDs {
		if id = strings.TrimSpace(id); id != omnibusID {
			components = append(components, found[id])
		}
	}
	updated, changes := merge.Omnibus(found[omnibusID], components, mode)

	result := &OmnibusResult{RunID: uuid.NewString(), Record: updated}
	ctx = services.WithRunID(ctx, result.RunID)
	current := map[string]metadata.Record{omnibusID: found[omnibusID]}
	for _, change := range changes {
		outcome, err := c.applyChange(ctx, result.RunID, mode, change, current, nil, store.SourceOmnibus)
		if err != nil {
			return result, err
		}
		result.Changes = append(result.Changes, outcome)
	}
	logging.WithContext(ctx, c.logger).Info("omnibus merged",
		logging.String(logging.FieldEventType, "omnibus_complete"),
		logging.String(logging.FieldRecordID, omnibusID),
		logging.Int("components", len(components)),
		logging.Int("changes", len(result.Changes)),
	)
	return result, nil
}

// fetchRecords pages through the library collecting the wanted records.
func (c *Coordinator) fetchRecords(ctx context.Context, wanted map[string]struct{}) (map[string]metadata.Record, error) {
	found := make(map[string]metadata.Record, len(wanted))
	cursor := ""
	for {
		page, err := c.library.FetchPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page %s: %w", cursorLabel(cursor), err)
		}
		for _, rec := range page.Records {
			if _, ok := wanted[rec.ID]; ok {
				rec.Completeness = metadata.Score(rec)
				found[rec.ID] = rec
			}
		}
		if page.Next == "" || page.Next == cursor || len(found) == len(wanted) {
			return found, nil
		}
		cursor = page.Next
	}
}
