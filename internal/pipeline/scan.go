package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"harmony/internal/logging"
	"harmony/internal/metadata"
	"harmony/internal/services"
	"harmony/internal/store"
)

// scan pages through the library. Each page is one unit: its records are
// snapshotted and scored, then the cursor and the scanned ids advance
// together in the checkpoint.
func (c *Coordinator) scan(ctx context.Context, state *RunState, logger *slog.Logger) error {
	seen := make(map[string]struct{}, len(state.Scanned))
	for _, id := range state.Scanned {
		seen[id] = struct{}{}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := c.library.FetchPage(ctx, state.Cursor)
		if page.Next != "" && page.Next == state.Cursor {
			return services.Wrap(services.ErrDataIntegrity, string(PhaseScanning), "fetch page",
				fmt.Sprintf("cursor %s did not advance", cursorLabel(state.Cursor)), nil)
		}
		if page.Total > 0 {
			state.Total = page.Total
		}
		if err != nil {
			err = fmt.Errorf("fetch page %s: %w", cursorLabel(state.Cursor), err)
			if ctx.Err() != nil || !errors.Is(err, services.ErrTransient) || page.Next == "" {
				return err
			}
			c.skipPage(state, page.Next, err, logger)
			if err := c.checkpoint(ctx, state); err != nil {
				return err
			}
			continue
		}

		records := slices.Clone(page.Records)
		metadata.SortByID(records)
		var (
			scanned []string
			invalid []string
			skipped []error
		)
		for _, rec := range records {
			id := strings.TrimSpace(rec.ID)
			if id == "" {
				err := services.Wrap(services.ErrValidation, string(PhaseScanning), "check record",
					fmt.Sprintf("record %q has no id", rec.Title), nil)
				skipped = append(skipped, err)
				logging.WarnWithContext(logger, "record skipped", "record_skipped",
					logging.String("title", rec.Title),
					logging.String(logging.FieldErrorHint, "fix the item id in the library"),
				)
				continue
			}
			if _, dup := seen[id]; dup {
				return withRecord(id, services.Wrap(services.ErrDataIntegrity, string(PhaseScanning), "deduplicate",
					fmt.Sprintf("record id %q listed twice", id), nil))
			}
			seen[id] = struct{}{}
			rec.ID = id

			bad, err := c.scanRecord(ctx, state, rec, logger)
			if err != nil {
				return withRecord(id, err)
			}
			scanned = append(scanned, id)
			if bad {
				invalid = append(invalid, id)
			}
			current := len(state.Scanned) + len(scanned)
			c.reportProgress(ctx, state, current, scanTotal(state, current), id)
		}

		state.Scanned = append(state.Scanned, scanned...)
		state.Invalid = append(state.Invalid, invalid...)
		for _, err := range skipped {
			state.addFailure("", PhaseScanning, err)
		}
		state.Cursor = page.Next
		logger.Debug("page scanned",
			logging.Int("records", len(scanned)),
			logging.Int("total", len(state.Scanned)),
			logging.String("next", cursorLabel(page.Next)),
		)
		if page.Next == "" {
			return nil
		}
		if err := c.checkpoint(ctx, state); err != nil {
			return err
		}
	}
}

// skipPage records the unreadable page at the current cursor and moves the
// cursor past it.
func (c *Coordinator) skipPage(state *RunState, next string, err error, logger *slog.Logger) {
	state.addFailure("", PhaseScanning, err)
	state.FailedPages = append(state.FailedPages, state.Cursor)
	logging.WarnWithContext(logger, "page skipped", "page_skipped",
		logging.String("cursor", cursorLabel(state.Cursor)),
		logging.String("next", next),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "records on this page were not scanned; rerun to pick them up"),
	)
	state.Cursor = next
}

// scanTotal is the expected record count, never below what has already been
// scanned, or zero while unknown.
func scanTotal(state *RunState, current int) int {
	if state.Total <= 0 {
		return 0
	}
	return max(state.Total, current)
}

// scanRecord persists the pre-run snapshot and score of rec and reports
// whether its record checks failed.
func (c *Coordinator) scanRecord(ctx context.Context, state *RunState, rec metadata.Record, logger *slog.Logger) (bool, error) {
	rec.Completeness = metadata.Score(rec)
	if err := c.store.PutSnapshot(ctx, state.RunID, rec); err != nil {
		return false, err
	}
	if err := c.store.PutScore(ctx, rec.ID, rec.Completeness); err != nil {
		return false, err
	}

	problems := metadata.CheckRecord(rec)
	if len(problems) == 0 {
		return false, nil
	}
	logger.Info("record routed to manual review",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.String("reason", store.ReasonInvalidRecord),
		logging.String("problems", strings.Join(problems, "; ")),
	)
	return true, c.enqueue(ctx, state, store.ReviewEntry{
		RecordID:   rec.ID,
		Reason:     store.ReasonInvalidRecord,
		Confidence: rec.Completeness,
		Detail:     strings.Join(problems, "; "),
	})
}

func cursorLabel(cursor string) string {
	if cursor == "" {
		return "start"
	}
	return cursor
}
