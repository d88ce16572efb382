package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"harmony/internal/metadata"
)

// Audit outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Audit sources.
const (
	SourceHarmonize = "harmonize"
	SourceRestore   = "restore"
	SourceOmnibus   = "omnibus"
)

// AuditEntry is one immutable change record.
type AuditEntry struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id"`
	Timestamp  time.Time      `json:"timestamp"`
	RecordID   string         `json:"record_id"`
	Field      string         `json:"field"`
	GroupKey   string         `json:"group_key,omitempty"`
	Old        metadata.Value `json:"old"`
	New        metadata.Value `json:"new"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
}

// AuditFilter narrows ListAudit.
type AuditFilter struct {
	RunID    string
	RecordID string
	Limit    int
}

const auditColumns = "id, run_id, ts, record_id, field, group_key, old_json, new_json, confidence, source, outcome, error_message"

// AppendAudit writes a change record. The audit log is append-only.
func (s *Store) AppendAudit(ctx context.Context, entry AuditEntry) error {
	oldJSON, err := json.Marshal(entry.Old)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newJSON, err := json.Marshal(entry.New)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}
	source := entry.Source
	if source == "" {
		source = SourceHarmonize
	}
	if err := s.run(ctx,
		`INSERT INTO audit_log (run_id, ts, record_id, field, group_key, old_json, new_json, confidence, source, outcome, error_message)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, formatTime(entry.Timestamp), entry.RecordID, entry.Field, entry.GroupKey,
		string(oldJSON), string(newJSON), entry.Confidence, source, entry.Outcome,
		nullableString(entry.Error),
	); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns audit rows in insertion order.
func (s *Store) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.RecordID != "" {
		clauses = append(clauses, "record_id = ?")
		args = append(args, filter.RecordID)
	}
	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// AppliedKeys returns record|field|group keys already applied in a run, so a
// resumed run never replays an applied change.
func (s *Store) AppliedKeys(ctx context.Context, runID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, field, group_key FROM audit_log WHERE run_id = ? AND outcome = ?`, runID, OutcomeApplied)
	if err != nil {
		return nil, fmt.Errorf("list applied keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var recordID, field, groupKey string
		if err := rows.Scan(&recordID, &field, &groupKey); err != nil {
			return nil, fmt.Errorf("scan applied key: %w", err)
		}
		out[recordID+"|"+field+"|"+groupKey] = struct{}{}
	}
	return out, rows.Err()
}

func scanAudit(scanner interface{ Scan(dest ...any) error }) (AuditEntry, error) {
	var (
		entry   AuditEntry
		tsRaw   string
		oldJSON sql.NullString
		newJSON sql.NullString
		errMsg  sql.NullString
	)
	if err := scanner.Scan(&entry.ID, &entry.RunID, &tsRaw, &entry.RecordID, &entry.Field, &entry.GroupKey,
		&oldJSON, &newJSON, &entry.Confidence, &entry.Source, &entry.Outcome, &errMsg); err != nil {
		return AuditEntry{}, err
	}
	entry.Timestamp = parseTimeOrZero(tsRaw)
	entry.Error = errMsg.String
	if oldJSON.Valid {
		if err := json.Unmarshal([]byte(oldJSON.String), &entry.Old); err != nil {
			return AuditEntry{}, fmt.Errorf("decode old value: %w", err)
		}
	}
	if newJSON.Valid {
		if err := json.Unmarshal([]byte(newJSON.String), &entry.New); err != nil {
			return AuditEntry{}, fmt.Errorf("decode new value: %w", err)
		}
	}
	return entry, nil
}
