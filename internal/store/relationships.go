package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"harmony/internal/relations"
)

// PutRelationship upserts a relationship by (subject, object, kind).
func (s *Store) PutRelationship(ctx context.Context, rel relations.Relationship) error {
	matched, err := json.Marshal(rel.Matched)
	if err != nil {
		return fmt.Errorf("marshal matched values: %w", err)
	}
	if err := s.run(ctx,
		`INSERT INTO relationships (subject_id, object_id, kind, confidence, group_key, matched_json, detected_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(subject_id, object_id, kind) DO UPDATE SET
             confidence = excluded.confidence,
             group_key = excluded.group_key,
             matched_json = excluded.matched_json,
             detected_at = excluded.detected_at`,
		rel.SubjectID, rel.ObjectID, string(rel.Kind), rel.Confidence,
		nullableString(rel.GroupKey), string(matched), formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("put relationship: %w", err)
	}
	return nil
}

// GetRelationships returns every relationship touching recordID.
func (s *Store) GetRelationships(ctx context.Context, recordID string) ([]relations.Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, object_id, kind, confidence, group_key, matched_json
         FROM relationships WHERE subject_id = ? OR object_id = ?
         ORDER BY kind, subject_id, object_id`,
		recordID, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("get relationships: %w", err)
	}
	defer rows.Close()

	var out []relations.Relationship
	for rows.Next() {
		var (
			rel      relations.Relationship
			kind     string
			groupKey sql.NullString
			matched  sql.NullString
		)
		if err := rows.Scan(&rel.SubjectID, &rel.ObjectID, &kind, &rel.Confidence, &groupKey, &matched); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rel.Kind = relations.Kind(kind)
		rel.GroupKey = groupKey.String
		if matched.Valid && matched.String != "" {
			if err := json.Unmarshal([]byte(matched.String), &rel.Matched); err != nil {
				return nil, fmt.Errorf("decode matched values: %w", err)
			}
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// ClearRelationships removes every stored relationship. A fresh detection
// pass replaces the previous run's graph.
func (s *Store) ClearRelationships(ctx context.Context) error {
	if err := s.run(ctx, `DELETE FROM relationships`); err != nil {
		return fmt.Errorf("clear relationships: %w", err)
	}
	return nil
}

// RelationshipCount returns the number of stored relationships.
func (s *Store) RelationshipCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM relationships`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count relationships: %w", err)
	}
	return n, nil
}
