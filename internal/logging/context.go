package logging

import (
	"context"
	"log/slog"

	"newsdigest/internal/services"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one pipeline run.
	FieldRunID = "run_id"
	// FieldItemID is the structured logging key for item identifiers.
	FieldItemID = "item_id"
	// FieldStage names the pipeline stage (ingest, prefilter, dedup, evaluate, digest, deliver).
	FieldStage = "stage"
	// FieldPersona names the evaluation persona.
	FieldPersona = "persona"
	// FieldErrorKind carries services.Kind for classified failures.
	FieldErrorKind = "error_kind"
)

const (
	FieldEventType    = "event_type"
	FieldErrorHint    = "error_hint"
	FieldDecisionType = "decision_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if runID, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldItemID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if persona, ok := services.PersonaFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPersona, persona))
	}
	return fields
}

// WithContext returns a logger augmented with fields derived from ctx.
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
