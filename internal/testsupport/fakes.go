package testsupport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const stubDims = 64

// StubEmbedder returns fixed vectors keyed by item title (the first line of
// the embed text). Titles without a fixed vector get a fresh one-hot vector,
// so they never collide with each other.
type StubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	failures map[string]int
	assigned map[string][]float32
	calls    map[string]int
}

// NewStubEmbedder constructs an embedder with fixed vectors. Fixed vectors
// are zero-padded and should only use the first half of the dimensions.
func NewStubEmbedder(vectors map[string][]float32) *StubEmbedder {
	return &StubEmbedder{
		vectors:  vectors,
		failures: make(map[string]int),
		assigned: make(map[string][]float32),
		calls:    make(map[string]int),
	}
}

// FailNext makes the next n calls for title fail.
func (s *StubEmbedder) FailNext(title string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[title] = n
}

// Calls reports how many times title was embedded.
func (s *StubEmbedder) Calls(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[title]
}

// Embed implements dedup.Embedder.
func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title, _, _ := strings.Cut(text, "\n")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[title]++
	if s.failures[title] > 0 {
		s.failures[title]--
		return nil, errors.New("stub embedder: scripted failure")
	}
	if vec, ok := s.vectors[title]; ok {
		out := make([]float32, stubDims)
		copy(out, vec)
		return out, nil
	}
	if vec, ok := s.assigned[title]; ok {
		return vec, nil
	}
	idx := len(s.assigned) + stubDims/2
	if idx >= stubDims {
		return nil, fmt.Errorf("stub embedder: out of distinct vectors for %q", title)
	}
	vec := make([]float32, stubDims)
	vec[idx] = 1
	s.assigned[title] = vec
	return vec, nil
}

// StubCompleter answers model calls from a function of (instructions, prompt).
// The prompt carries the item title on its TITLE: line.
type StubCompleter struct {
	mu      sync.Mutex
	Respond func(instructions, title string) (string, error)
	calls   int
}

// CompleteJSON implements evaluator.Completer.
func (s *StubCompleter) CompleteJSON(ctx context.Context, instructions, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.calls++
	respond := s.Respond
	s.mu.Unlock()
	return respond(instructions, PromptTitle(prompt))
}

// Calls reports how many completions were requested.
func (s *StubCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PromptTitle extracts the TITLE: line value from an evaluation prompt.
func PromptTitle(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if value, ok := strings.CutPrefix(line, "TITLE: "); ok {
			return value
		}
	}
	return ""
}

// GenaiReply renders a schema-valid GENAI_NEWS reply.
func GenaiReply(score int, keep bool) string {
	return fmt.Sprintf(`{"relevance_score": %d, "topic": "AI", "why_it_matters": "Matters.", "target_audience": "engineers", "decision": %q}`, score, decision(keep))
}

// ProductReply renders a schema-valid PRODUCT_IDEAS reply.
func ProductReply(score int, keep bool) string {
	return fmt.Sprintf(`{"idea_type": "devtool", "problem_statement": "Pain.", "solution_summary": "Fix.", "maturity_level": "prototype", "reusability_score": %d, "decision": %q}`, score, decision(keep))
}

// IsProductPersona reports whether instructions belong to PRODUCT_IDEAS.
func IsProductPersona(instructions string) bool {
	return strings.Contains(instructions, "product/startup ideas")
}

func decision(keep bool) string {
	if keep {
		return "keep"
	}
	return "drop"
}
