package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Review reasons.
const (
	ReasonLowConfidenceRelationship = "low_confidence_relationship"
	ReasonLowConfidenceResolution   = "low_confidence_resolution"
	ReasonInvalidRecord             = "invalid_record"
	ReasonNeedsEnrichment           = "needs_enrichment"
)

// ReviewEntry is one item in the manual review queue.
type ReviewEntry struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id,omitempty"`
	RecordID   string     `json:"record_id"`
	Reason     string     `json:"reason"`
	Field      string     `json:"field,omitempty"`
	Confidence float64    `json:"confidence"`
	Detail     string     `json:"detail,omitempty"`
	FlaggedAt  time.Time  `json:"flagged_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

const reviewColumns = "id, run_id, record_id, reason, field, confidence, detail, flagged_at, resolved, resolved_at"

// EnqueueReview adds an open review entry. An open entry for the same record,
// reason and field is refreshed instead of duplicated.
func (s *Store) EnqueueReview(ctx context.Context, entry ReviewEntry) error {
	if entry.RecordID == "" || entry.Reason == "" {
		return fmt.Errorf("enqueue review: record id and reason are required")
	}
	if err := s.run(ctx,
		`INSERT INTO manual_review_queue (run_id, record_id, reason, field, confidence, detail, flagged_at, resolved)
         VALUES (?, ?, ?, ?, ?, ?, ?, 0)
         ON CONFLICT(record_id, reason, field) WHERE resolved = 0 DO UPDATE SET
             run_id = excluded.run_id,
             confidence = excluded.confidence,
             detail = excluded.detail,
             flagged_at = excluded.flagged_at`,
		nullableString(entry.RunID), entry.RecordID, entry.Reason, entry.Field,
		entry.Confidence, nullableString(entry.Detail), formatTime(entry.FlaggedAt),
	); err != nil {
		return fmt.Errorf("enqueue review: %w", err)
	}
	return nil
}

// ListReview returns review entries ordered by id. Resolved entries are
// included only when includeResolved is set.
func (s *Store) ListReview(ctx context.Context, includeResolved bool) ([]ReviewEntry, error) {
	query := `SELECT ` + reviewColumns + ` FROM manual_review_queue`
	if !includeResolved {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list review: %w", err)
	}
	defer rows.Close()

	var out []ReviewEntry
	for rows.Next() {
		entry, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ResolveReview marks an entry resolved. Resolving an already resolved entry
// reports false.
func (s *Store) ResolveReview(ctx context.Context, id int64) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE manual_review_queue SET resolved = 1, resolved_at = ? WHERE id = ? AND resolved = 0`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("resolve review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve review rows: %w", err)
	}
	return n > 0, nil
}

// ReviewCountsByReason counts open entries per reason.
func (s *Store) ReviewCountsByReason(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason, COUNT(1) FROM manual_review_queue WHERE resolved = 0 GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("count review: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan review count: %w", err)
		}
		out[reason] = n
	}
	return out, rows.Err()
}

func scanReview(scanner interface{ Scan(dest ...any) error }) (ReviewEntry, error) {
	var (
		entry       ReviewEntry
		runID       sql.NullString
		confidence  sql.NullFloat64
		detail      sql.NullString
		flaggedRaw  string
		resolved    int
		resolvedRaw sql.NullString
	)
	if err := scanner.Scan(&entry.ID, &runID, &entry.RecordID, &entry.Reason, &entry.Field,
		&confidence, &detail, &flaggedRaw, &resolved, &resolvedRaw); err != nil {
		return ReviewEntry{}, err
	}
	entry.RunID = runID.String
	entry.Confidence = confidence.Float64
	entry.Detail = detail.String
	entry.FlaggedAt = parseTimeOrZero(flaggedRaw)
	entry.Resolved = resolved != 0
	if resolvedRaw.Valid {
		if t, err := parseTime(resolvedRaw.String); err == nil {
			entry.ResolvedAt = &t
		}
	}
	return entry, nil
}
