package prefilter_test

import (
	"testing"

	"newsdigest/internal/config"
	"newsdigest/internal/prefilter"
	"newsdigest/internal/store"
)

func TestCheckRules(t *testing.T) {
	filter, err := prefilter.New(config.Prefilter{
		MinTextChars:    12,
		MinSignal:       30,
		NoisePatterns:   []string{"Who is hiring", `re:^ask hn:`},
		Keywords:        []string{"LLM", "agent"},
		RequireKeywords: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name   string
		item   store.Item
		reason string
	}{
		{"empty title", store.Item{Title: "  ", Body: "long enough body text"}, prefilter.ReasonEmptyTitle},
		{"too short", store.Item{Title: "Tiny", Body: "x", Engagement: store.Engagement{Score: 100}}, prefilter.ReasonTooShort},
		{"noise substring", store.Item{Title: "Ask: WHO IS HIRING in March?", Engagement: store.Engagement{Score: 100}}, prefilter.ReasonNoise},
		{"noise regex", store.Item{Title: "Ask HN: which LLM do you use?", Engagement: store.Engagement{Score: 100}}, prefilter.ReasonNoise},
		{"low signal", store.Item{Title: "New LLM agent framework", Engagement: store.Engagement{Score: 5}}, prefilter.ReasonLowSignal},
		{"no keyword", store.Item{Title: "Rust 2.0 released today", Engagement: store.Engagement{Score: 90}}, prefilter.ReasonNoKeyword},
		{"full-width keyword", store.Item{Title: "Open ＬＬＭ weights published", Engagement: store.Engagement{Score: 90}}, ""},
		{"keyword in body", store.Item{Title: "Interesting release", Body: "An AGENT runtime", Engagement: store.Engagement{Score: 30}}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := filter.Check(tc.item)
			if tc.reason == "" {
				if !decision.Pass {
					t.Fatalf("expected pass, got %#v", decision)
				}
				if !filter.Passes(tc.item) {
					t.Fatal("Passes disagrees with Check")
				}
				return
			}
			if decision.Pass || decision.Reason != tc.reason {
				t.Fatalf("expected rejection %q, got %#v", tc.reason, decision)
			}
		})
	}
}

func TestKeywordsOptionalByDefault(t *testing.T) {
	filter, err := prefilter.New(config.Prefilter{Keywords: []string{"llm"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !filter.Passes(store.Item{Title: "Anything at all"}) {
		t.Fatal("expected keywords to be advisory when require_keywords is false")
	}
}

func TestNewRejectsBadRegex(t *testing.T) {
	if _, err := prefilter.New(config.Prefilter{NoisePatterns: []string{"re:("}}); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
