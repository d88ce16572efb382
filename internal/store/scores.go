package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetScore returns the cached completeness score for a record.
func (s *Store) GetScore(ctx context.Context, recordID string) (float64, bool, error) {
	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM completeness_scores WHERE record_id = ?`, recordID,
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get score: %w", err)
	}
	return score, true, nil
}

// PutScore upserts the completeness score for a record.
func (s *Store) PutScore(ctx context.Context, recordID string, score float64) error {
	if err := s.run(ctx,
		`INSERT INTO completeness_scores (record_id, score, calculated_at) VALUES (?, ?, ?)
         ON CONFLICT(record_id) DO UPDATE SET score = excluded.score, calculated_at = excluded.calculated_at`,
		recordID, score, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("put score: %w", err)
	}
	return nil
}

// Scores returns every cached score keyed by record id.
func (s *Store) Scores(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_id, score FROM completeness_scores`)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			id    string
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out[id] = score
	}
	return out, rows.Err()
}
