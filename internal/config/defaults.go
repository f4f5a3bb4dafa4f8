package config

const (
	defaultConfigPath         = "~/.config/newsdigest/config.toml"
	defaultDataDir            = "~/.local/share/newsdigest"
	defaultOutDir             = "~/.local/share/newsdigest/out"
	defaultFeedSource         = "hackernews"
	defaultHNBaseURL          = "https://hacker-news.firebaseio.com/v0"
	defaultHNLimit            = 30
	defaultHNConcurrency      = 4
	defaultFeedTimeout        = 15
	defaultMinTextChars       = 12
	defaultMinSignal          = 30
	defaultDedupThreshold     = 0.86
	defaultDedupHorizonHours  = 168
	defaultWindowHours        = 24
	defaultEvalMaxItems       = 10
	defaultMaxItems           = 6
	defaultConcurrency        = 2
	defaultCallTimeoutSeconds = 120
	defaultOllamaBaseURL      = "http://localhost:11434"
	defaultOllamaModel        = "llama3.1:8b"
	defaultOllamaEmbedModel   = "nomic-embed-text"
	defaultOllamaTemperature  = 0.1
	defaultOllamaTimeout      = 120
	defaultEmbeddingProvider  = "ollama"
	defaultIndexBackend       = "flat"
	defaultQdrantCollection   = "newsdigest_items"
	defaultTelegramParseMode  = "MarkdownV2"
	defaultTelegramAPIBaseURL = "https://api.telegram.org"
	defaultNATSStream         = "DIGESTS"
	defaultNATSSubject        = "DIGESTS.published"
	defaultNtfyRequestTimeout = 10
	defaultAPIBind            = "127.0.0.1:8087"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogFile            = "~/.local/share/newsdigest/logs/run.log"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			OutDir:  defaultOutDir,
		},
		Feed: Feed{
			Source:         defaultFeedSource,
			HNBaseURL:      defaultHNBaseURL,
			HNLimit:        defaultHNLimit,
			HNConcurrency:  defaultHNConcurrency,
			RequestTimeout: defaultFeedTimeout,
		},
		Prefilter: Prefilter{
			MinTextChars: defaultMinTextChars,
			MinSignal:    defaultMinSignal,
		},
		Dedup: Dedup{
			Threshold:    defaultDedupThreshold,
			HorizonHours: defaultDedupHorizonHours,
		},
		Pipeline: Pipeline{
			WindowHours:        defaultWindowHours,
			EvalMaxItems:       defaultEvalMaxItems,
			MaxItems:           defaultMaxItems,
			Concurrency:        defaultConcurrency,
			CallTimeoutSeconds: defaultCallTimeoutSeconds,
		},
		Ollama: Ollama{
			BaseURL:        defaultOllamaBaseURL,
			Model:          defaultOllamaModel,
			EmbedModel:     defaultOllamaEmbedModel,
			Temperature:    defaultOllamaTemperature,
			TimeoutSeconds: defaultOllamaTimeout,
		},
		Embedding: Embedding{
			Provider: defaultEmbeddingProvider,
		},
		VectorIndex: VectorIndex{
			Backend:    defaultIndexBackend,
			Collection: defaultQdrantCollection,
		},
		Telegram: Telegram{
			ParseMode:  defaultTelegramParseMode,
			APIBaseURL: defaultTelegramAPIBaseURL,
		},
		NATS: NATS{
			Stream:  defaultNATSStream,
			Subject: defaultNATSSubject,
		},
		Ntfy: Ntfy{RequestTimeout: defaultNtfyRequestTimeout},
		Artifacts: Artifacts{
			Markdown: true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			File:   defaultLogFile,
		},
	}
}
