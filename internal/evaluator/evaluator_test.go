package evaluator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"newsdigest/internal/evaluator"
	"newsdigest/internal/persona"
	"newsdigest/internal/services"
	"newsdigest/internal/store"
)

type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedCompleter) CompleteJSON(_ context.Context, _, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.prompts)
	s.prompts = append(s.prompts, userPrompt)
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

func genaiPersona(t *testing.T) persona.Definition {
	t.Helper()
	reg, err := persona.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	def, ok := reg.Get("GENAI_NEWS")
	if !ok {
		t.Fatal("GENAI_NEWS missing")
	}
	return def
}

func sampleItem() *store.Item {
	return &store.Item{
		ID:       7,
		Title:    "New inference engine",
		URL:      "https://example.com/engine",
		Origin:   "hackernews",
		Body:     strings.Repeat("x", 1500),
		Metadata: map[string]any{"by": "alice"},
	}
}

const validReply = `{"relevance_score": 90, "topic": "Inference", "why_it_matters": "Cheaper serving.", "target_audience": "ML engineers", "decision": "keep"}`

func TestEvaluateReturnsVerdict(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"```json\n" + validReply + "\n```"}}
	ev := evaluator.New(completer)

	verdict, err := ev.Evaluate(context.Background(), sampleItem(), genaiPersona(t))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.RelevanceScore != 90 || !verdict.Keep || verdict.Tags[0] != "Inference" {
		t.Fatalf("unexpected verdict %#v", verdict)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("expected one call, got %d", len(completer.prompts))
	}
}

func TestEvaluateRetriesOnceAfterSchemaFailure(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"relevance_score": "high"}`, validReply}}
	ev := evaluator.New(completer)

	verdict, err := ev.Evaluate(context.Background(), sampleItem(), genaiPersona(t))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.RelevanceScore != 90 || len(completer.prompts) != 2 {
		t.Fatalf("expected valid verdict after retry, got %#v calls=%d", verdict, len(completer.prompts))
	}
}

func TestEvaluateClassifiesFailures(t *testing.T) {
	schema := &scriptedCompleter{responses: []string{`{"topic": "x"}`, `{"topic": "y"}`, validReply}}
	_, err := evaluator.New(schema).Evaluate(context.Background(), sampleItem(), genaiPersona(t))
	if !errors.Is(err, services.ErrSchemaValidation) {
		t.Fatalf("expected schema validation error, got %v", err)
	}
	if len(schema.prompts) != 2 {
		t.Fatalf("expected exactly two attempts, got %d", len(schema.prompts))
	}

	transport := &scriptedCompleter{errs: []error{errors.New("boom"), errors.New("boom")}}
	_, err = evaluator.New(transport).Evaluate(context.Background(), sampleItem(), genaiPersona(t))
	if !errors.Is(err, services.ErrEvaluation) || errors.Is(err, services.ErrSchemaValidation) {
		t.Fatalf("expected evaluation error, got %v", err)
	}

	prose := &scriptedCompleter{responses: []string{"I cannot help", "still no"}}
	_, err = evaluator.New(prose).Evaluate(context.Background(), sampleItem(), genaiPersona(t))
	if !errors.Is(err, services.ErrEvaluation) {
		t.Fatalf("expected evaluation error for non-JSON reply, got %v", err)
	}
}

func TestBuildPromptTruncatesText(t *testing.T) {
	prompt := evaluator.BuildPrompt(sampleItem())
	if !strings.HasPrefix(prompt, "Evaluate this item:\n\nTITLE: New inference engine\n") {
		t.Fatalf("unexpected prompt header %q", prompt[:60])
	}
	if !strings.Contains(prompt, "TEXT: "+strings.Repeat("x", 1200)+"\n") {
		t.Fatal("expected text truncated to 1200 characters")
	}
	if strings.Contains(prompt, strings.Repeat("x", 1201)) {
		t.Fatal("text not truncated")
	}
	if !strings.Contains(prompt, `METADATA: {"by":"alice"}`) {
		t.Fatalf("expected metadata JSON in prompt: %q", prompt)
	}
}
