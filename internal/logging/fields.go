package logging

import (
	"context"
	"log/slog"

	"harmony/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one harmonization run.
	FieldRunID = "run_id"
	// FieldPhase is the pipeline phase (scanning, detecting, ...).
	FieldPhase = "phase"
	// FieldRecordID identifies one library record.
	FieldRecordID = "record_id"
	// FieldCorrelationID is the per-phase request correlation identifier.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies notable events for filtering.
	FieldEventType = "event_type"
	// FieldErrorKind is the failure taxonomy label from services.Classify.
	FieldErrorKind = "error_kind"
	// FieldErrorHint suggests the next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags anomalies that should stand out.
	FieldAlert = "alert"
	// FieldProgressPercent is the completion percentage of the current phase.
	FieldProgressPercent = "progress_percent"
	// FieldProgressETA is the estimated time remaining.
	FieldProgressETA = "progress_eta"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	if id, ok := services.RecordIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRecordID, id))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
