package digest_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsdigest/internal/digest"
	"newsdigest/internal/persona"
	"newsdigest/internal/store"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func entry(id int64, score, points, comments int, observedAgo time.Duration) digest.Entry {
	return digest.Entry{
		Item: &store.Item{
			ID:         id,
			Title:      "Item " + string(rune('A'+id)),
			URL:        "https://example.com",
			Engagement: store.Engagement{Score: points, Comments: comments},
			ObservedAt: now.Add(-observedAgo),
		},
		Verdict: store.Verdict{
			RelevanceScore: score,
			Tags:           []string{"AI"},
			Rationale:      "Because.",
			Keep:           true,
			Details:        map[string]any{"topic": "AI", "why_it_matters": "Because."},
		},
	}
}

func personas(t *testing.T) []persona.Definition {
	t.Helper()
	reg, err := persona.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	return reg.Enabled()
}

func ids(entries []digest.Entry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Item.ID)
	}
	return out
}

func TestRankIsTotal(t *testing.T) {
	entries := []digest.Entry{
		entry(5, 80, 10, 0, time.Hour),
		entry(4, 90, 1, 0, time.Hour),
		entry(3, 80, 10, 5, time.Hour),
		entry(2, 80, 10, 5, 30*time.Minute),
		entry(1, 80, 10, 5, 30*time.Minute),
	}
	digest.Rank(entries)
	got := ids(entries)
	want := []int64{4, 1, 2, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order = %v, want %v", got, want)
		}
	}
}

func TestAssembleCapsAndKeepsEmptySections(t *testing.T) {
	accepted := map[string][]digest.Entry{
		"GENAI_NEWS": {
			entry(1, 70, 50, 0, time.Hour),
			entry(2, 95, 9, 0, time.Hour),
			entry(3, 70, 100, 0, time.Hour),
		},
	}
	d := digest.Assemble("run-1", accepted, personas(t), 2, 24*time.Hour, now)

	if len(d.Sections) != 2 {
		t.Fatalf("expected a section per persona, got %d", len(d.Sections))
	}
	news := d.Sections[0]
	if news.Persona != "GENAI_NEWS" || len(news.Entries) != 2 {
		t.Fatalf("unexpected section %+v", news)
	}
	if got := ids(news.Entries); got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3] after cap, got %v", got)
	}
	if d.Sections[1].Persona != "PRODUCT_IDEAS" || d.Sections[1].Entries == nil || len(d.Sections[1].Entries) != 0 {
		t.Fatalf("expected empty PRODUCT_IDEAS section, got %+v", d.Sections[1])
	}
	if !d.WindowStart.Equal(now.Add(-24*time.Hour)) || !d.WindowEnd.Equal(now) || d.ItemCount() != 2 {
		t.Fatalf("unexpected digest header %+v", d)
	}
	if len(accepted["GENAI_NEWS"]) != 3 {
		t.Fatal("Assemble must not modify its input")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	d := digest.Assemble("run-2", map[string][]digest.Entry{"GENAI_NEWS": {entry(1, 70, 5, 1, time.Hour)}}, personas(t), 6, 24*time.Hour, now)
	record, err := d.Record()
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if record.ItemCount != 1 || record.RunID != "run-2" {
		t.Fatalf("unexpected record %+v", record)
	}
	restored, err := digest.Decode(record)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if restored.Sections[0].Entries[0].Verdict.RelevanceScore != 70 {
		t.Fatalf("unexpected restored digest %+v", restored)
	}
}

func TestMarkdownIncludesPersonaFields(t *testing.T) {
	d := digest.Assemble("run-3", map[string][]digest.Entry{"GENAI_NEWS": {entry(1, 70, 50, 7, time.Hour)}}, personas(t), 6, 24*time.Hour, now)
	md := digest.Markdown(d, d.Sections[0])
	for _, want := range []string{
		"# GenAI News Digest · 2026-03-04",
		"## 1. Item B",
		"- Score: 70/100",
		"- Engagement: ⬆️ 50 | 💬 7",
		"- Why It Matters: Because.",
		"- Topic: AI",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if empty := digest.Markdown(d, d.Sections[1]); !strings.Contains(empty, "_No items kept this run._") {
		t.Fatalf("expected empty marker, got:\n%s", empty)
	}
}

func TestWriteArtifacts(t *testing.T) {
	d := digest.Assemble("abcdef12-3456", map[string][]digest.Entry{"GENAI_NEWS": {entry(1, 70, 50, 7, time.Hour)}}, personas(t), 6, 24*time.Hour, now)
	artifacts, err := digest.Render(d, true)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	dir := t.TempDir()
	paths, err := digest.WriteArtifacts(dir, artifacts)
	if err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("expected 5 artifacts, got %v", paths)
	}
	for _, name := range []string{
		"genai_news_2026-03-04.json",
		"genai_news_2026-03-04.md",
		"product_ideas_2026-03-04.json",
		"product_ideas_2026-03-04.md",
		"digest_2026-03-04_abcdef12.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "genai_news_2026-03-04.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var section struct {
		Persona string `json:"persona"`
		Count   int    `json:"count"`
		Items   []struct {
			Score   int    `json:"score"`
			Summary string `json:"summary"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &section); err != nil {
		t.Fatalf("decode section: %v", err)
	}
	if section.Persona != "GENAI_NEWS" || section.Count != 1 || section.Items[0].Summary != "Because." {
		t.Fatalf("unexpected section file %+v", section)
	}

	withoutMarkdown, err := digest.Render(d, false)
	if err != nil || len(withoutMarkdown) != 3 {
		t.Fatalf("expected 3 artifacts without markdown, got %d err=%v", len(withoutMarkdown), err)
	}
}

func TestLabel(t *testing.T) {
	if got := digest.Label("why_it_matters"); got != "Why It Matters" {
		t.Fatalf("Label = %q", got)
	}
}
