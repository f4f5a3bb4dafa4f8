package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"newsdigest/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	wantData := filepath.Join(tempHome, ".local", "share", "newsdigest")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "newsdigest.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Dedup.Threshold != 0.86 {
		t.Fatalf("unexpected threshold: %v", cfg.Dedup.Threshold)
	}
	if cfg.Pipeline.EvalMaxItems != 10 || cfg.Pipeline.MaxItems != 6 {
		t.Fatalf("unexpected pipeline caps: %+v", cfg.Pipeline)
	}
	if cfg.Telegram.Enabled {
		t.Fatal("expected telegram disabled by default")
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/digest-data",
		},
		"feed": map[string]any{
			"source":    "FILE",
			"file_path": "~/items.json",
		},
		"dedup": map[string]any{
			"threshold": 0.9,
		},
		"personas": map[string]any{
			"overrides": map[string]any{
				"genai_news": map[string]any{"min_score": 70, "max_items": 3},
			},
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Feed.Source != "file" {
		t.Fatalf("expected lower-cased source, got %q", cfg.Feed.Source)
	}
	if cfg.Feed.FilePath != filepath.Join(tempHome, "items.json") {
		t.Fatalf("unexpected file path: %q", cfg.Feed.FilePath)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "digest-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	override, ok := cfg.PersonaOverride("GENAI_NEWS")
	if !ok {
		t.Fatal("expected override lookup to be case-insensitive")
	}
	if override.MinScore == nil || *override.MinScore != 70 || override.MaxItems != 3 {
		t.Fatalf("unexpected override: %+v", override)
	}
}

func TestEnvironmentOverridesFileValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OLLAMA_MODEL", "qwen2.5:7b")
	t.Setenv("TIME_WINDOW_HOURS", "48")
	t.Setenv("DEDUP_SIM_THRESHOLD", "0.75")
	t.Setenv("HN_KEYWORDS", "llm, agents ,")
	t.Setenv("PERSONA_PRODUCT_IDEAS_ENABLED", "false")
	t.Setenv("GENAI_NEWS_MIN_SCORE", "80")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Ollama.Model != "qwen2.5:7b" {
		t.Fatalf("unexpected model: %q", cfg.Ollama.Model)
	}
	if cfg.Pipeline.WindowHours != 48 {
		t.Fatalf("unexpected window: %d", cfg.Pipeline.WindowHours)
	}
	if cfg.Dedup.Threshold != 0.75 {
		t.Fatalf("unexpected threshold: %v", cfg.Dedup.Threshold)
	}
	if strings.Join(cfg.Prefilter.Keywords, "|") != "llm|agents" {
		t.Fatalf("unexpected keywords: %v", cfg.Prefilter.Keywords)
	}
	ideas, ok := cfg.PersonaOverride("PRODUCT_IDEAS")
	if !ok || ideas.Enabled == nil || *ideas.Enabled {
		t.Fatalf("expected PRODUCT_IDEAS disabled, got %+v", ideas)
	}
	news, ok := cfg.PersonaOverride("GENAI_NEWS")
	if !ok || news.MinScore == nil || *news.MinScore != 80 {
		t.Fatalf("expected GENAI_NEWS min score 80, got %+v", news)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"threshold", func(c *config.Config) { c.Dedup.Threshold = 1.5 }, "dedup.threshold"},
		{"eval max", func(c *config.Config) { c.Pipeline.EvalMaxItems = 0 }, "eval_max_items"},
		{"telegram", func(c *config.Config) { c.Telegram.Enabled = true }, "telegram.bot_token"},
		{"qdrant", func(c *config.Config) { c.VectorIndex.Backend = "qdrant" }, "qdrant_addr"},
		{"provider", func(c *config.Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"file source", func(c *config.Config) { c.Feed.Source = "file" }, "feed.file_path"},
		{"ntfy priority", func(c *config.Config) { c.Ntfy.Priority = "loud" }, "ntfy.priority"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Fatalf("unexpected embed model: %q", cfg.Ollama.EmbedModel)
	}
}
