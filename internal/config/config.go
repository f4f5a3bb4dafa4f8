package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	OutDir  string `toml:"out_dir"`
}

// Feed selects and configures the item source polled once per run.
type Feed struct {
	Source         string `toml:"source"`
	HNBaseURL      string `toml:"hn_base_url"`
	HNLimit        int    `toml:"hn_limit"`
	HNConcurrency  int    `toml:"hn_concurrency"`
	FilePath       string `toml:"file_path"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Prefilter contains the cheap deterministic rejection rules.
type Prefilter struct {
	MinTextChars    int      `toml:"min_text_chars"`
	MinSignal       int      `toml:"min_signal"`
	NoisePatterns   []string `toml:"noise_patterns"`
	Keywords        []string `toml:"keywords"`
	RequireKeywords bool     `toml:"require_keywords"`
}

// Dedup contains near-duplicate detection settings.
type Dedup struct {
	Threshold    float64 `toml:"threshold"`
	HorizonHours int     `toml:"horizon_hours"`
}

// Pipeline contains run-level limits.
type Pipeline struct {
	WindowHours        int `toml:"window_hours"`
	EvalMaxItems       int `toml:"eval_max_items"`
	MaxItems           int `toml:"max_items"`
	Concurrency        int `toml:"concurrency"`
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`
}

// Ollama contains the local model endpoint settings.
type Ollama struct {
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	EmbedModel     string  `toml:"embed_model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Embedding selects the embedding provider. When provider is "ollama" the
// [ollama] section supplies the endpoint and model.
type Embedding struct {
	Provider string `toml:"provider"`
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

// VectorIndex selects the similarity index backend.
type VectorIndex struct {
	Backend    string `toml:"backend"`
	QdrantAddr string `toml:"qdrant_addr"`
	Collection string `toml:"collection"`
}

// PersonaSettings overrides a persona definition.
type PersonaSettings struct {
	Enabled  *bool `toml:"enabled"`
	MinScore *int  `toml:"min_score"`
	MaxItems int   `toml:"max_items"`
}

// Personas points at an optional YAML definitions file and carries per-persona overrides.
type Personas struct {
	File      string                     `toml:"file"`
	Overrides map[string]PersonaSettings `toml:"overrides"`
}

// Telegram contains delivery settings for the Telegram Bot API.
type Telegram struct {
	Enabled    bool   `toml:"enabled"`
	BotToken   string `toml:"bot_token"`
	ChatID     string `toml:"chat_id"`
	ParseMode  string `toml:"parse_mode"`
	APIBaseURL string `toml:"api_base_url"`
}

// NATS contains digest publish settings. An empty URL disables publishing.
type NATS struct {
	URL     string `toml:"url"`
	Stream  string `toml:"stream"`
	Subject string `toml:"subject"`
}

// Ntfy contains push notification settings. An empty topic URL disables it.
type Ntfy struct {
	TopicURL       string `toml:"topic_url"`
	Priority       string `toml:"priority"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Artifacts controls digest files and the optional S3-compatible mirror.
type Artifacts struct {
	Markdown    bool   `toml:"markdown"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Bucket    string `toml:"s3_bucket"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3UseSSL    bool   `toml:"s3_use_ssl"`
	S3Prefix    string `toml:"s3_prefix"`
}

// API contains the read-only HTTP server settings.
type API struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for newsdigest.
//
// Configuration sections by subsystem:
//   - Paths: data directory (database, run lock) and digest output directory
//   - Feed: item source selection (Hacker News API or JSON file)
//   - Prefilter: cheap rejection rules applied before any model call
//   - Dedup: similarity threshold and dedup horizon
//   - Pipeline: digest window, evaluation cap, output cap, worker pool size
//   - Ollama: local chat and embedding endpoint
//   - Embedding: embedding provider selection
//   - VectorIndex: in-process flat index or Qdrant
//   - Personas: persona definitions file and per-persona overrides
//   - Telegram, NATS, Ntfy: delivery collaborators
//   - Artifacts: Markdown rendering and S3 mirror
//   - API: read-only HTTP server
//   - Logging: log format, level, and file
type Config struct {
	Paths       Paths       `toml:"paths"`
	Feed        Feed        `toml:"feed"`
	Prefilter   Prefilter   `toml:"prefilter"`
	Dedup       Dedup       `toml:"dedup"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Ollama      Ollama      `toml:"ollama"`
	Embedding   Embedding   `toml:"embedding"`
	VectorIndex VectorIndex `toml:"vector_index"`
	Personas    Personas    `toml:"personas"`
	Telegram    Telegram    `toml:"telegram"`
	NATS        NATS        `toml:"nats"`
	Ntfy        Ntfy        `toml:"ntfy"`
	Artifacts   Artifacts   `toml:"artifacts"`
	API         API         `toml:"api"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("newsdigest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and output directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if file := strings.TrimSpace(c.Logging.File); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "newsdigest.db")
}

// LockPath returns the run lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "run.lock")
}

// Window returns the digest inclusion window.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Pipeline.WindowHours) * time.Hour
}

// DedupHorizon returns how far back near-duplicates are searched.
func (c *Config) DedupHorizon() time.Duration {
	return time.Duration(c.Dedup.HorizonHours) * time.Hour
}

// CallTimeout returns the per-call timeout for embedding and model requests.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Pipeline.CallTimeoutSeconds) * time.Second
}

// PersonaOverride returns the override block for a persona, matched case-insensitively.
func (c *Config) PersonaOverride(name string) (PersonaSettings, bool) {
	for key, value := range c.Personas.Overrides {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return PersonaSettings{}, false
}

// OverriddenPersonas lists persona names that carry overrides, sorted.
func (c *Config) OverriddenPersonas() []string {
	names := make([]string, 0, len(c.Personas.Overrides))
	for key := range c.Personas.Overrides {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
