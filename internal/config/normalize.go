package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeed()
	c.normalizePrefilter()
	c.normalizeOllama()
	c.normalizeEmbedding()
	c.normalizeVectorIndex()
	c.normalizeDelivery()
	c.normalizeLogging()
	return nil
}

// applyEnv layers the environment variables understood by earlier releases on
// top of file values. Set variables win over the file.
func (c *Config) applyEnv() {
	envString("OLLAMA_BASE_URL", &c.Ollama.BaseURL)
	envString("OLLAMA_MODEL", &c.Ollama.Model)
	envString("OLLAMA_EMBED_MODEL", &c.Ollama.EmbedModel)
	envFloat("OLLAMA_TEMPERATURE", &c.Ollama.Temperature)
	envInt("TIME_WINDOW_HOURS", &c.Pipeline.WindowHours)
	envInt("EVAL_MAX_ITEMS", &c.Pipeline.EvalMaxItems)
	envInt("TELEGRAM_MAX_ITEMS", &c.Pipeline.MaxItems)
	envFloat("DEDUP_SIM_THRESHOLD", &c.Dedup.Threshold)
	envInt("DEDUP_HORIZON_HOURS", &c.Dedup.HorizonHours)
	envInt("HN_MIN_SCORE", &c.Prefilter.MinSignal)
	envList("HN_KEYWORDS", &c.Prefilter.Keywords)
	envList("HN_BLOCKLIST", &c.Prefilter.NoisePatterns)
	envBool("HN_REQUIRE_KEYWORDS", &c.Prefilter.RequireKeywords)
	envBool("TELEGRAM_ENABLED", &c.Telegram.Enabled)
	envString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	envString("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	envString("TELEGRAM_PARSE_MODE", &c.Telegram.ParseMode)
	envString("NTFY_TOPIC_URL", &c.Ntfy.TopicURL)
	envString("LOG_FILE", &c.Logging.File)

	for _, name := range []string{"GENAI_NEWS", "PRODUCT_IDEAS"} {
		override, _ := c.PersonaOverride(name)
		changed := false
		if value, ok := os.LookupEnv("PERSONA_" + name + "_ENABLED"); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
				override.Enabled = &parsed
				changed = true
			}
		}
		if value, ok := os.LookupEnv(name + "_MIN_SCORE"); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				override.MinScore = &parsed
				changed = true
			}
		}
		if changed {
			c.setPersonaOverride(name, override)
		}
	}
}

func (c *Config) setPersonaOverride(name string, value PersonaSettings) {
	if c.Personas.Overrides == nil {
		c.Personas.Overrides = make(map[string]PersonaSettings)
	}
	for key := range c.Personas.Overrides {
		if strings.EqualFold(key, name) {
			c.Personas.Overrides[key] = value
			return
		}
	}
	c.Personas.Overrides[name] = value
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutDir) == "" {
		c.Paths.OutDir = defaultOutDir
	}
	if c.Paths.OutDir, err = expandPath(c.Paths.OutDir); err != nil {
		return fmt.Errorf("paths.out_dir: %w", err)
	}
	if c.Personas.File, err = expandPath(strings.TrimSpace(c.Personas.File)); err != nil {
		return fmt.Errorf("personas.file: %w", err)
	}
	if c.Feed.FilePath, err = expandPath(strings.TrimSpace(c.Feed.FilePath)); err != nil {
		return fmt.Errorf("feed.file_path: %w", err)
	}
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeFeed() {
	c.Feed.Source = strings.ToLower(strings.TrimSpace(c.Feed.Source))
	if c.Feed.Source == "" {
		c.Feed.Source = defaultFeedSource
	}
	c.Feed.HNBaseURL = strings.TrimRight(strings.TrimSpace(c.Feed.HNBaseURL), "/")
	if c.Feed.HNBaseURL == "" {
		c.Feed.HNBaseURL = defaultHNBaseURL
	}
	if c.Feed.HNLimit <= 0 {
		c.Feed.HNLimit = defaultHNLimit
	}
	if c.Feed.HNConcurrency <= 0 {
		c.Feed.HNConcurrency = defaultHNConcurrency
	}
	if c.Feed.RequestTimeout <= 0 {
		c.Feed.RequestTimeout = defaultFeedTimeout
	}
}

func (c *Config) normalizePrefilter() {
	c.Prefilter.NoisePatterns = cleanList(c.Prefilter.NoisePatterns)
	c.Prefilter.Keywords = cleanList(c.Prefilter.Keywords)
	if c.Prefilter.MinTextChars < 0 {
		c.Prefilter.MinTextChars = 0
	}
}

func (c *Config) normalizeOllama() {
	c.Ollama.BaseURL = strings.TrimRight(strings.TrimSpace(c.Ollama.BaseURL), "/")
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = defaultOllamaBaseURL
	}
	c.Ollama.Model = strings.TrimSpace(c.Ollama.Model)
	if c.Ollama.Model == "" {
		c.Ollama.Model = defaultOllamaModel
	}
	c.Ollama.EmbedModel = strings.TrimSpace(c.Ollama.EmbedModel)
	if c.Ollama.EmbedModel == "" {
		c.Ollama.EmbedModel = defaultOllamaEmbedModel
	}
	if c.Ollama.TimeoutSeconds <= 0 {
		c.Ollama.TimeoutSeconds = defaultOllamaTimeout
	}
}

func (c *Config) normalizeEmbedding() {
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = defaultEmbeddingProvider
	}
	c.Embedding.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embedding.BaseURL), "/")
	c.Embedding.Model = strings.TrimSpace(c.Embedding.Model)
	if c.Embedding.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Embedding.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Embedding.Provider == "openai" {
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = c.Ollama.BaseURL + "/v1"
		}
		if c.Embedding.Model == "" {
			c.Embedding.Model = c.Ollama.EmbedModel
		}
	}
}

func (c *Config) normalizeVectorIndex() {
	c.VectorIndex.Backend = strings.ToLower(strings.TrimSpace(c.VectorIndex.Backend))
	if c.VectorIndex.Backend == "" {
		c.VectorIndex.Backend = defaultIndexBackend
	}
	c.VectorIndex.QdrantAddr = strings.TrimSpace(c.VectorIndex.QdrantAddr)
	c.VectorIndex.Collection = strings.TrimSpace(c.VectorIndex.Collection)
	if c.VectorIndex.Collection == "" {
		c.VectorIndex.Collection = defaultQdrantCollection
	}
}

func (c *Config) normalizeDelivery() {
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	c.Telegram.ParseMode = strings.TrimSpace(c.Telegram.ParseMode)
	if c.Telegram.ParseMode == "" {
		c.Telegram.ParseMode = defaultTelegramParseMode
	}
	c.Telegram.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.APIBaseURL), "/")
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = defaultTelegramAPIBaseURL
	}
	c.NATS.URL = strings.TrimSpace(c.NATS.URL)
	if strings.TrimSpace(c.NATS.Stream) == "" {
		c.NATS.Stream = defaultNATSStream
	}
	if strings.TrimSpace(c.NATS.Subject) == "" {
		c.NATS.Subject = defaultNATSSubject
	}
	c.Ntfy.TopicURL = strings.TrimSpace(c.Ntfy.TopicURL)
	c.Ntfy.Priority = strings.ToLower(strings.TrimSpace(c.Ntfy.Priority))
	if c.Ntfy.RequestTimeout <= 0 {
		c.Ntfy.RequestTimeout = defaultNtfyRequestTimeout
	}
	c.Artifacts.S3Endpoint = strings.TrimSpace(c.Artifacts.S3Endpoint)
	c.Artifacts.S3Bucket = strings.TrimSpace(c.Artifacts.S3Bucket)
	if c.Artifacts.S3AccessKey == "" {
		if value, ok := os.LookupEnv("S3_ACCESS_KEY"); ok {
			c.Artifacts.S3AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Artifacts.S3SecretKey == "" {
		if value, ok := os.LookupEnv("S3_SECRET_KEY"); ok {
			c.Artifacts.S3SecretKey = strings.TrimSpace(value)
		}
	}
	c.Artifacts.S3Prefix = strings.Trim(strings.TrimSpace(c.Artifacts.S3Prefix), "/")
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func envString(key string, target *string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func envInt(key string, target *int) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func envFloat(key string, target *float64) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*target = parsed
		}
	}
}

func envBool(key string, target *bool) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func envList(key string, target *[]string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.Split(value, ",")
	}
}
