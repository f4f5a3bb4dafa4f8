package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"newsdigest/internal/config"
	"newsdigest/internal/dedup"
	"newsdigest/internal/delivery"
	"newsdigest/internal/evaluator"
	"newsdigest/internal/feed"
	"newsdigest/internal/feed/hackernews"
	"newsdigest/internal/logging"
	"newsdigest/internal/objectstore"
	"newsdigest/internal/persona"
	"newsdigest/internal/pipeline"
	"newsdigest/internal/prefilter"
	"newsdigest/internal/services/llm"
	"newsdigest/internal/services/ollama"
	"newsdigest/internal/services/openaiembed"
	"newsdigest/internal/store"
	"newsdigest/internal/vectorindex"
)

func newEmbedder(cfg *config.Config) (dedup.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:        cfg.Ollama.BaseURL,
			EmbedModel:     cfg.Ollama.EmbedModel,
			TimeoutSeconds: cfg.Ollama.TimeoutSeconds,
		}), nil
	case "openai":
		return openaiembed.NewClient(openaiembed.Config{
			BaseURL:        cfg.Embedding.BaseURL,
			APIKey:         cfg.Embedding.APIKey,
			Model:          cfg.Embedding.Model,
			TimeoutSeconds: cfg.Ollama.TimeoutSeconds,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}
}

func newIndex(cfg *config.Config, logger *slog.Logger) (vectorindex.Index, error) {
	switch cfg.VectorIndex.Backend {
	case "flat":
		return vectorindex.NewFlat(), nil
	case "qdrant":
		return vectorindex.NewQdrant(cfg.VectorIndex.QdrantAddr, cfg.VectorIndex.Collection, logger)
	default:
		return nil, fmt.Errorf("unsupported vector index backend %q", cfg.VectorIndex.Backend)
	}
}

func newCompleter(cfg *config.Config, logger *slog.Logger) *llm.Client {
	return llm.NewClient(llm.Config{
		BaseURL:        cfg.Ollama.BaseURL + "/v1",
		Model:          cfg.Ollama.Model,
		Temperature:    cfg.Ollama.Temperature,
		TimeoutSeconds: cfg.Ollama.TimeoutSeconds,
	}, llm.WithRetryObserver(func(attempt int, err error) {
		logger.Debug("model call failed, retrying",
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
	}))
}

func newSource(cfg *config.Config, logger *slog.Logger) (feed.Source, error) {
	switch cfg.Feed.Source {
	case "hackernews":
		timeout := time.Duration(cfg.Feed.RequestTimeout) * time.Second
		return hackernews.New(hackernews.Config{
			BaseURL:     cfg.Feed.HNBaseURL,
			Limit:       cfg.Feed.HNLimit,
			Concurrency: cfg.Feed.HNConcurrency,
			Timeout:     timeout,
		}, &http.Client{Timeout: timeout}, logger), nil
	case "file":
		return feed.NewFileSource(cfg.Feed.FilePath), nil
	default:
		return nil, fmt.Errorf("unsupported feed source %q", cfg.Feed.Source)
	}
}

// newDeduplicator wires the embedder and index. The returned close function
// releases the index connection.
func newDeduplicator(cfg *config.Config, st *store.Store, logger *slog.Logger) (*dedup.Deduplicator, func(), error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	index, err := newIndex(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	d := dedup.New(embedder, st, index, cfg.Dedup.Threshold, cfg.DedupHorizon(),
		dedup.WithCallTimeout(cfg.CallTimeout()),
		dedup.WithLogger(logging.NewComponentLogger(logger, "dedup")),
	)
	return d, func() { _ = index.Close() }, nil
}

func newRunner(cfg *config.Config, st *store.Store, logger *slog.Logger) (*pipeline.Runner, func(), error) {
	source, err := newSource(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	filter, err := prefilter.New(cfg.Prefilter)
	if err != nil {
		return nil, nil, err
	}
	personas, err := persona.Load(cfg)
	if err != nil {
		return nil, nil, err
	}
	deduplicator, closeIndex, err := newDeduplicator(cfg, st, logger)
	if err != nil {
		return nil, nil, err
	}
	deps := pipeline.Deps{
		Store:    st,
		Source:   source,
		Filter:   filter,
		Dedup:    deduplicator,
		Personas: personas,
		Evaluator: evaluator.New(newCompleter(cfg, logger),
			evaluator.WithCallTimeout(cfg.CallTimeout()),
			evaluator.WithLogger(logging.NewComponentLogger(logger, "evaluator")),
		),
		Deliverer: delivery.NewFromConfig(cfg, logging.NewComponentLogger(logger, "delivery")),
		Logger:    logger,
	}
	if objectstore.Enabled(cfg.Artifacts) {
		mirror, err := objectstore.New(cfg.Artifacts, logger)
		if err != nil {
			closeIndex()
			return nil, nil, err
		}
		deps.Mirror = mirror
	}
	runner, err := pipeline.New(cfg, deps)
	if err != nil {
		closeIndex()
		return nil, nil, err
	}
	return runner, closeIndex, nil
}

// embeddingHealth probes the configured embedding backend.
func embeddingHealth(ctx context.Context, cfg *config.Config) error {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	if checker, ok := embedder.(interface{ HealthCheck(context.Context) error }); ok {
		return checker.HealthCheck(ctx)
	}
	_, err = embedder.Embed(ctx, "newsdigest health check")
	return err
}
