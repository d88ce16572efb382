package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"harmony/internal/metadata"
)

// SnapshotRun summarizes the snapshots taken by one run.
type SnapshotRun struct {
	RunID   string    `json:"run_id"`
	Records int       `json:"records"`
	TakenAt time.Time `json:"taken_at"`
}

// PutSnapshot stores the pre-run state of a record. The first snapshot of a
// record within a run wins, so a resumed scan never overwrites the original.
func (s *Store) PutSnapshot(ctx context.Context, runID string, record metadata.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.run(ctx,
		`INSERT INTO snapshots (run_id, record_id, payload, taken_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(run_id, record_id) DO NOTHING`,
		runID, record.ID, string(payload), formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Snapshot returns one record's snapshot from a run.
func (s *Store) Snapshot(ctx context.Context, runID, recordID string) (*metadata.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE run_id = ? AND record_id = ?`, runID, recordID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var record metadata.Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &record, nil
}

// Snapshots returns every snapshot of a run ordered by record id.
func (s *Store) Snapshots(ctx context.Context, runID string) ([]metadata.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshots WHERE run_id = ? ORDER BY record_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []metadata.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var record metadata.Record
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// SnapshotRuns lists runs that have snapshots, newest first.
func (s *Store) SnapshotRuns(ctx context.Context) ([]SnapshotRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, COUNT(1), MIN(taken_at) FROM snapshots GROUP BY run_id ORDER BY MIN(taken_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshot runs: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRun
	for rows.Next() {
		var (
			run     SnapshotRun
			takenAt string
		)
		if err := rows.Scan(&run.RunID, &run.Records, &takenAt); err != nil {
			return nil, fmt.Errorf("scan snapshot run: %w", err)
		}
		run.TakenAt = parseTimeOrZero(takenAt)
		out = append(out, run)
	}
	return out, rows.Err()
}
