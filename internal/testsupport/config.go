package testsupport

import (
	"path/filepath"
	"testing"

	"newsdigest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Network collaborators are left disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.OutDir = filepath.Join(base, "out")
	cfgVal.Logging.File = ""
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Pipeline.CallTimeoutSeconds = 5

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithFeedFile points the feed at a JSON file inside the test directory.
func WithFeedFile(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feed.Source = "file"
		b.cfg.Feed.FilePath = filepath.Join(b.baseDir, name)
	}
}

// WithPersonaOverride sets a persona override block.
func WithPersonaOverride(name string, settings config.PersonaSettings) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Personas.Overrides == nil {
			b.cfg.Personas.Overrides = make(map[string]config.PersonaSettings)
		}
		b.cfg.Personas.Overrides[name] = settings
	}
}

// WithPipeline adjusts the window, evaluation cap and output cap.
func WithPipeline(windowHours, evalMax, maxItems int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.WindowHours = windowHours
		b.cfg.Pipeline.EvalMaxItems = evalMax
		b.cfg.Pipeline.MaxItems = maxItems
	}
}

// WithConcurrency sets the worker pool size.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Concurrency = n
	}
}

// BaseDir returns the temp directory backing cfg's paths.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
