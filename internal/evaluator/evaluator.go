package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsdigest/internal/logging"
	"newsdigest/internal/persona"
	"newsdigest/internal/services"
	"newsdigest/internal/services/llm"
	"newsdigest/internal/store"
)

const (
	maxPromptTextRunes = 1200
	defaultAttempts    = 2
)

// Completer issues a JSON-mode chat completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Evaluator scores items against persona schemas.
type Evaluator struct {
	completer   Completer
	logger      *slog.Logger
	callTimeout time.Duration
	attempts    int
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithCallTimeout bounds each model call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(e *Evaluator) {
		e.callTimeout = timeout
	}
}

// WithLogger sets the evaluator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New constructs an Evaluator.
func New(completer Completer, opts ...Option) *Evaluator {
	e := &Evaluator{
		completer: completer,
		logger:    logging.NewNop(),
		attempts:  defaultAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate asks the model to judge item for def and validates the answer.
// A failed attempt is retried once with a fresh request; the first valid
// verdict is returned. Errors carry services.ErrEvaluation for transport or
// parse failures and services.ErrSchemaValidation for schema violations.
func (e *Evaluator) Evaluate(ctx context.Context, item *store.Item, def persona.Definition) (*store.Verdict, error) {
	if item == nil {
		return nil, services.Wrap(services.ErrEvaluation, "evaluate", def.Name, "nil item", nil)
	}
	prompt := BuildPrompt(item)
	ctx = services.WithPersona(services.WithItemID(ctx, item.ID), def.Name)

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		verdict, err := e.attempt(ctx, def, prompt)
		if err == nil {
			return verdict, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < e.attempts {
			logging.WithContext(ctx, e.logger).Debug("evaluation attempt failed, retrying",
				logging.Int("attempt", attempt),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.Error(err),
			)
		}
	}
	return nil, lastErr
}

func (e *Evaluator) attempt(ctx context.Context, def persona.Definition, prompt string) (*store.Verdict, error) {
	callCtx := ctx
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}
	content, err := e.completer.CompleteJSON(callCtx, def.Instructions, prompt)
	if err != nil {
		return nil, services.Wrap(services.ErrEvaluation, "evaluate", def.Name, "model call failed", err)
	}
	var payload map[string]any
	if err := llm.DecodeLLMJSON(content, &payload); err != nil {
		return nil, services.Wrap(services.ErrEvaluation, "evaluate", def.Name, "response is not JSON", err)
	}
	verdict, err := def.Verdict(payload)
	if err != nil {
		var schemaErr *persona.SchemaError
		if errors.As(err, &schemaErr) {
			return nil, services.Wrap(services.ErrSchemaValidation, "evaluate", def.Name, "", err)
		}
		return nil, services.Wrap(services.ErrEvaluation, "evaluate", def.Name, "", err)
	}
	return verdict, nil
}

// BuildPrompt renders the user prompt for an item.
func BuildPrompt(item *store.Item) string {
	metadata := "{}"
	if len(item.Metadata) > 0 {
		if encoded, err := json.Marshal(item.Metadata); err == nil {
			metadata = string(encoded)
		}
	}
	var b strings.Builder
	b.WriteString("Evaluate this item:\n\n")
	fmt.Fprintf(&b, "TITLE: %s\n", item.Title)
	fmt.Fprintf(&b, "URL: %s\n", item.URL)
	fmt.Fprintf(&b, "SOURCE: %s\n", item.Origin)
	fmt.Fprintf(&b, "TEXT: %s\n", truncateRunes(item.Body, maxPromptTextRunes))
	fmt.Fprintf(&b, "METADATA: %s\n", metadata)
	return b.String()
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
