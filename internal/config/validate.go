package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validatePersonas(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateFeed() error {
	switch c.Feed.Source {
	case "hackernews":
	case "file":
		if c.Feed.FilePath == "" {
			return errors.New("feed.file_path must be set when feed.source is \"file\"")
		}
	default:
		return fmt.Errorf("feed.source: unsupported value %q (want hackernews or file)", c.Feed.Source)
	}
	return nil
}

func (c *Config) validateDedup() error {
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return errors.New("dedup.threshold must be in (0, 1]")
	}
	if c.Dedup.HorizonHours <= 0 {
		return errors.New("dedup.horizon_hours must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.WindowHours <= 0 {
		return errors.New("pipeline.window_hours must be positive")
	}
	if c.Pipeline.EvalMaxItems <= 0 {
		return errors.New("pipeline.eval_max_items must be positive")
	}
	if c.Pipeline.MaxItems <= 0 {
		return errors.New("pipeline.max_items must be positive")
	}
	if c.Pipeline.Concurrency <= 0 {
		return errors.New("pipeline.concurrency must be positive")
	}
	if c.Pipeline.CallTimeoutSeconds <= 0 {
		return errors.New("pipeline.call_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBackends() error {
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		return errors.New("ollama.temperature must be between 0 and 2")
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider: unsupported value %q (want ollama or openai)", c.Embedding.Provider)
	}
	switch c.VectorIndex.Backend {
	case "flat":
	case "qdrant":
		if c.VectorIndex.QdrantAddr == "" {
			return errors.New("vector_index.qdrant_addr must be set when backend is \"qdrant\"")
		}
	default:
		return fmt.Errorf("vector_index.backend: unsupported value %q (want flat or qdrant)", c.VectorIndex.Backend)
	}
	return nil
}

func (c *Config) validatePersonas() error {
	for _, name := range c.OverriddenPersonas() {
		override := c.Personas.Overrides[name]
		if override.MinScore != nil && *override.MinScore < 0 {
			return fmt.Errorf("personas.overrides.%s.min_score must not be negative", name)
		}
		if override.MaxItems < 0 {
			return fmt.Errorf("personas.overrides.%s.max_items must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return errors.New("telegram.bot_token must be set when telegram.enabled is true (or export TELEGRAM_BOT_TOKEN)")
		}
		if c.Telegram.ChatID == "" {
			return errors.New("telegram.chat_id must be set when telegram.enabled is true (or export TELEGRAM_CHAT_ID)")
		}
	}
	switch c.Ntfy.Priority {
	case "", "min", "low", "default", "high", "max", "urgent":
	default:
		return fmt.Errorf("ntfy.priority: unsupported value %q", c.Ntfy.Priority)
	}
	if c.Artifacts.S3Endpoint != "" && c.Artifacts.S3Bucket == "" {
		return errors.New("artifacts.s3_bucket must be set when artifacts.s3_endpoint is configured")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
