package persona_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"newsdigest/internal/config"
	"newsdigest/internal/persona"
)

func TestBuiltinPersonas(t *testing.T) {
	reg, err := persona.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 2 || enabled[0].Name != "GENAI_NEWS" || enabled[1].Name != "PRODUCT_IDEAS" {
		t.Fatalf("unexpected personas: %#v", reg.Names())
	}
	if enabled[0].MinScore != 65 || enabled[1].MinScore != 60 {
		t.Fatalf("unexpected min scores: %d, %d", enabled[0].MinScore, enabled[1].MinScore)
	}
}

func TestGenaiNewsVerdictMapping(t *testing.T) {
	reg, err := persona.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	def, _ := reg.Get("genai_news")

	verdict, err := def.Verdict(map[string]any{
		"relevance_score": float64(82),
		"topic":           "Inference",
		"why_it_matters":  "Halves serving cost.",
		"target_audience": "ML engineers",
		"decision":        "KEEP",
	})
	if err != nil {
		t.Fatalf("Verdict failed: %v", err)
	}
	if verdict.RelevanceScore != 82 || !verdict.Keep || verdict.AudienceHint != "ML engineers" {
		t.Fatalf("unexpected verdict %#v", verdict)
	}
	if len(verdict.Tags) != 1 || verdict.Tags[0] != "Inference" || verdict.Rationale != "Halves serving cost." {
		t.Fatalf("unexpected mapping %#v", verdict)
	}
	if verdict.Details["decision"] != "keep" {
		t.Fatalf("expected canonical enum value, got %v", verdict.Details["decision"])
	}
	if !def.Accepts(verdict) {
		t.Fatal("expected 82 >= 65 with keep to be accepted")
	}
	verdict.RelevanceScore = 64
	if def.Accepts(verdict) {
		t.Fatal("expected score below min to be rejected")
	}
}

func TestVerdictReportsAllSchemaProblems(t *testing.T) {
	reg, err := persona.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	def, _ := reg.Get("PRODUCT_IDEAS")

	_, err = def.Verdict(map[string]any{
		"idea_type":         "devtool",
		"problem_statement": "pain",
		"solution_summary":  "fix",
		"maturity_level":    "vaporware",
		"reusability_score": 140.0,
	})
	var schemaErr *persona.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(schemaErr.Problems) != 3 {
		t.Fatalf("expected 3 problems (maturity, score, decision), got %v", schemaErr.Problems)
	}
}

func TestVerdictAcceptsNumericStrings(t *testing.T) {
	reg, _ := persona.Builtin()
	def, _ := reg.Get("PRODUCT_IDEAS")
	verdict, err := def.Verdict(map[string]any{
		"idea_type":         "B2B SaaS",
		"problem_statement": "Teams lose context.",
		"solution_summary":  "Shared memory.",
		"maturity_level":    "Prototype",
		"reusability_score": "70",
		"decision":          "drop",
	})
	if err != nil {
		t.Fatalf("Verdict failed: %v", err)
	}
	if verdict.RelevanceScore != 70 || verdict.Keep {
		t.Fatalf("unexpected verdict %#v", verdict)
	}
	if strings.Join(verdict.Tags, ",") != "B2B SaaS,prototype" {
		t.Fatalf("unexpected tags %v", verdict.Tags)
	}
	if verdict.Rationale != "Teams lose context. Shared memory." {
		t.Fatalf("unexpected rationale %q", verdict.Rationale)
	}
}

func TestLoadAppliesOverridesAndFile(t *testing.T) {
	cfg := config.Default()
	disabled := false
	minScore := 80
	cfg.Personas.Overrides = map[string]config.PersonaSettings{
		"product_ideas": {Enabled: &disabled},
		"GENAI_NEWS":    {MinScore: &minScore, MaxItems: 3},
	}
	reg, err := persona.Load(&cfg)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].MinScore != 80 || enabled[0].Cap(6) != 3 {
		t.Fatalf("unexpected enabled personas %#v", enabled)
	}

	cfg.Personas.Overrides = map[string]config.PersonaSettings{"MISSING": {}}
	if _, err := persona.Load(&cfg); err == nil {
		t.Fatal("expected unknown persona override to fail")
	}

	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := `personas:
  - name: security
    instructions: Rate security relevance as JSON.
    score_scale: 10
    fields:
      - {name: score, type: integer, min: 0, max: 10}
      - {name: area, type: string}
      - {name: keep, type: boolean}
    mapping:
      score: score
      tags: [area]
      decision: keep
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write personas: %v", err)
	}
	cfg.Personas.Overrides = nil
	cfg.Personas.File = path
	reg, err = persona.Load(&cfg)
	if err != nil {
		t.Fatalf("Load from file failed: %v", err)
	}
	def, ok := reg.Get("SECURITY")
	if !ok || def.Enabled {
		t.Fatalf("expected disabled-by-default SECURITY persona, got %#v", def)
	}
	verdict, err := def.Verdict(map[string]any{"score": 7.0, "area": "supply chain", "keep": true})
	if err != nil || !verdict.Keep || verdict.RelevanceScore != 7 {
		t.Fatalf("unexpected verdict %#v err=%v", verdict, err)
	}
}

func TestParseRejectsBrokenMapping(t *testing.T) {
	doc := `personas:
  - name: X
    instructions: x
    fields:
      - {name: s, type: string}
    mapping:
      score: s
      tags: [s]
      decision: s
`
	if _, err := persona.Parse([]byte(doc)); err == nil {
		t.Fatal("expected mapping.score to require an integer field")
	}
}

func TestParseRejectsUnboundedScoreField(t *testing.T) {
	tests := []struct {
		name  string
		field string
		want  string
	}{
		{"optional", "{name: score, type: integer, min: 0, max: 100, optional: true}", "cannot be optional"},
		{"no bounds", "{name: score, type: integer}", "needs min and max"},
		{"above scale", "{name: score, type: integer, min: 0, max: 5000}", "outside 0..100"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := `personas:
  - name: X
    instructions: x
    fields:
      - ` + tc.field + `
      - {name: area, type: string}
      - {name: keep, type: boolean}
    mapping:
      score: score
      tags: [area]
      decision: keep
`
			_, err := persona.Parse([]byte(doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestVerdictMissingScoreIsSchemaError(t *testing.T) {
	def := persona.Definition{
		Name:       "X",
		ScoreScale: 100,
		Fields: []persona.Field{
			{Name: "score", Type: persona.TypeInteger, Optional: true},
			{Name: "area", Type: persona.TypeString},
		},
		Mapping: persona.Mapping{Score: "score", Tags: []string{"area"}},
	}
	verdict, err := def.Verdict(map[string]any{"area": "chips"})
	var schemaErr *persona.SchemaError
	if verdict != nil || !errors.As(err, &schemaErr) {
		t.Fatalf("expected schema error, got %#v %v", verdict, err)
	}
}
