package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Checkpoint is the persisted run state. Payload is owned by the pipeline.
type Checkpoint struct {
	RunID     string
	Phase     string
	Payload   []byte
	UpdatedAt time.Time
}

// LoadCheckpoint returns the saved checkpoint, or nil when none exists.
func (s *Store) LoadCheckpoint(ctx context.Context) (*Checkpoint, error) {
	var (
		cp         Checkpoint
		payload    string
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, phase, payload, updated_at FROM checkpoint WHERE id = 1`,
	).Scan(&cp.RunID, &cp.Phase, &payload, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	cp.Payload = []byte(payload)
	cp.UpdatedAt = parseTimeOrZero(updatedRaw)
	return &cp, nil
}

// SaveCheckpoint replaces the checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	if err := s.run(ctx,
		`INSERT INTO checkpoint (id, run_id, phase, payload, updated_at) VALUES (1, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             run_id = excluded.run_id,
             phase = excluded.phase,
             payload = excluded.payload,
             updated_at = excluded.updated_at`,
		cp.RunID, cp.Phase, string(cp.Payload), formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoint removes the checkpoint.
func (s *Store) ClearCheckpoint(ctx context.Context) error {
	if err := s.run(ctx, `DELETE FROM checkpoint`); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
