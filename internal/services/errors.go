package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIngestion        = errors.New("ingestion error")
	ErrStore            = errors.New("store error")
	ErrEmbedding        = errors.New("embedding error")
	ErrEvaluation       = errors.New("evaluation error")
	ErrSchemaValidation = errors.New("schema validation error")
	ErrDelivery         = errors.New("delivery error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrEvaluation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort a pipeline run. Only feed and store
// failures are fatal; everything else is recovered per item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIngestion) || errors.Is(err, ErrStore)
}

// Kind returns a short label for the marker carried by err, used in logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIngestion):
		return "ingestion"
	case errors.Is(err, ErrStore):
		return "store"
	case errors.Is(err, ErrEmbedding):
		return "embedding"
	case errors.Is(err, ErrSchemaValidation):
		return "schema_validation"
	case errors.Is(err, ErrEvaluation):
		return "evaluation"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
