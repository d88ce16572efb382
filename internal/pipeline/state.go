package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"harmony/internal/compare"
	"harmony/internal/consistency"
	"harmony/internal/merge"
	"harmony/internal/relations"
	"harmony/internal/report"
	"harmony/internal/services"
	"harmony/internal/store"
)

// RunState is everything a run needs to continue after an interruption. The
// Coordinator is its only writer.
type RunState struct {
	RunID       string     `json:"run_id"`
	Phase       Phase      `json:"phase"`
	FailedPhase Phase      `json:"failed_phase,omitempty"`
	Mode        merge.Mode `json:"mode"`
	Threshold   float64    `json:"threshold"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Resumes     int        `json:"resumes,omitempty"`
	LastError   string     `json:"last_error,omitempty"`

	// Scanning: the next page cursor and every record id taken so far.
	// FailedPages lists cursors whose page could not be read and was passed
	// over. Total is the library size last reported by the listing.
	Cursor      string   `json:"cursor,omitempty"`
	Scanned     []string `json:"scanned,omitempty"`
	Invalid     []string `json:"invalid,omitempty"`
	FailedPages []string `json:"failed_pages,omitempty"`
	Total       int      `json:"total,omitempty"`

	RelationshipsByKind map[string]int    `json:"relationships_by_kind,omitempty"`
	ReviewRelationships int               `json:"review_relationships,omitempty"`
	Groups              []relations.Group `json:"groups,omitempty"`

	GroupCursor   int                   `json:"group_cursor,omitempty"`
	Discrepancies []compare.Discrepancy `json:"discrepancies,omitempty"`

	MergeCursor int             `json:"merge_cursor,omitempty"`
	Changes     []ChangeOutcome `json:"changes,omitempty"`

	Validation *consistency.Result `json:"validation,omitempty"`
	Failures   []report.Failure    `json:"failures,omitempty"`
}

// ChangeOutcome is a change together with what happened to it.
type ChangeOutcome struct {
	Change  merge.Change `json:"change"`
	Outcome string       `json:"outcome"`
	Kind    string       `json:"kind,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Landed reports whether the change is part of the projected library state:
// applied in apply mode or previewed in dry-run mode.
func (o ChangeOutcome) Landed() bool {
	return o.Outcome != store.OutcomeFailed
}

func (o ChangeOutcome) failure(phase Phase) report.Failure {
	return report.Failure{
		RecordID: o.Change.RecordID,
		Phase:    string(phase),
		Kind:     o.Kind,
		Message:  o.Error,
	}
}

func newFailure(recordID string, phase Phase, err error) report.Failure {
	return report.Failure{
		RecordID: recordID,
		Phase:    string(phase),
		Kind:     services.Classify(err),
		Message:  err.Error(),
	}
}

func newRunState(runID string, mode merge.Mode, threshold float64, now time.Time) *RunState {
	return &RunState{
		RunID:     runID,
		Phase:     PhaseScanning,
		Mode:      mode,
		Threshold: threshold,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (s *RunState) addFailure(recordID string, phase Phase, err error) {
	s.Failures = append(s.Failures, newFailure(recordID, phase, err))
}

func (s *RunState) landedChanges() []merge.Change {
	out := make([]merge.Change, 0, len(s.Changes))
	for _, o := range s.Changes {
		if o.Landed() {
			out = append(out, o.Change)
		}
	}
	return out
}

func (s *RunState) invalidSet() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Invalid))
	for _, id := range s.Invalid {
		out[id] = struct{}{}
	}
	return out
}

// LoadState returns the persisted run state, or nil when no run is pending.
func LoadState(ctx context.Context, st *store.Store) (*RunState, error) {
	cp, err := st.LoadCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	var state RunState
	if err := json.Unmarshal(cp.Payload, &state); err != nil {
		return nil, services.Wrap(services.ErrDataIntegrity, "startup", "load checkpoint",
			fmt.Sprintf("checkpoint for run %s is unreadable", cp.RunID), err)
	}
	if state.RunID == "" || !state.Phase.Valid() {
		return nil, services.Wrap(services.ErrDataIntegrity, "startup", "load checkpoint",
			fmt.Sprintf("checkpoint for run %q has phase %q", state.RunID, state.Phase), nil)
	}
	return &state, nil
}

func saveState(ctx context.Context, st *store.Store, state *RunState, now time.Time) error {
	state.UpdatedAt = now
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	return st.SaveCheckpoint(ctx, store.Checkpoint{
		RunID:     state.RunID,
		Phase:     string(state.Phase),
		Payload:   payload,
		UpdatedAt: now,
	})
}

// recordError ties a phase error to the record that caused it.
type recordError struct {
	recordID string
	err      error
}

func (e *recordError) Error() string { return e.err.Error() }

func (e *recordError) Unwrap() error { return e.err }

func withRecord(recordID string, err error) error {
	if err == nil {
		return nil
	}
	return &recordError{recordID: recordID, err: err}
}

func recordOf(err error) string {
	var re *recordError
	if errors.As(err, &re) {
		return re.recordID
	}
	return ""
}
