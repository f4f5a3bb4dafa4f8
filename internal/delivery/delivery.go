package delivery

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"newsdigest/internal/config"
	"newsdigest/internal/digest"
	"newsdigest/internal/logging"
	"newsdigest/internal/services"
)

// Deliverer hands a persisted digest to a downstream channel.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, d digest.Digest) error
}

// NewFromConfig returns the deliverers enabled in cfg fanned out through
// Multi, or a noop when none is configured.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) Deliverer {
	var targets []Deliverer
	if cfg.Telegram.Enabled {
		targets = append(targets, NewTelegram(TelegramConfig{
			BotToken:  cfg.Telegram.BotToken,
			ChatID:    cfg.Telegram.ChatID,
			ParseMode: cfg.Telegram.ParseMode,
			BaseURL:   cfg.Telegram.APIBaseURL,
		}, &http.Client{Timeout: 30 * time.Second}))
	}
	if cfg.NATS.URL != "" {
		targets = append(targets, NewNATS(cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.Subject))
	}
	if cfg.Ntfy.TopicURL != "" {
		targets = append(targets, NewNtfy(NtfyConfig{
			TopicURL: cfg.Ntfy.TopicURL,
			Priority: cfg.Ntfy.Priority,
		}, &http.Client{Timeout: time.Duration(cfg.Ntfy.RequestTimeout) * time.Second}))
	}
	switch len(targets) {
	case 0:
		return Noop{}
	case 1:
		return withLogging(targets[0], logger)
	default:
		return NewMulti(logger, targets...)
	}
}

// Noop discards digests.
type Noop struct{}

// Name identifies the deliverer.
func (Noop) Name() string { return "noop" }

// Deliver does nothing.
func (Noop) Deliver(context.Context, digest.Digest) error { return nil }

// Multi delivers to every target. One failing target does not stop the rest.
type Multi struct {
	targets []Deliverer
	logger  *slog.Logger
}

// NewMulti constructs a fan-out deliverer.
func NewMulti(logger *slog.Logger, targets ...Deliverer) *Multi {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Multi{targets: targets, logger: logger}
}

// Name identifies the deliverer.
func (m *Multi) Name() string { return "multi" }

// Deliver sends d to each target and joins their errors.
func (m *Multi) Deliver(ctx context.Context, d digest.Digest) error {
	var errs []error
	for _, target := range m.targets {
		if err := withLogging(target, m.logger).Deliver(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type logged struct {
	Deliverer
	logger *slog.Logger
}

func withLogging(target Deliverer, logger *slog.Logger) Deliverer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return logged{Deliverer: target, logger: logger}
}

func (l logged) Deliver(ctx context.Context, d digest.Digest) error {
	started := time.Now()
	if err := l.Deliverer.Deliver(ctx, d); err != nil {
		wrapped := services.Wrap(services.ErrDelivery, "deliver", l.Name(), "", err)
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "digest delivery failed", "delivery_failed",
			logging.String("target", l.Name()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "digest is persisted; re-send with `newsdigest digest send`"),
		)
		return wrapped
	}
	l.logger.Info("digest delivered",
		logging.String("target", l.Name()),
		logging.String("run_id", d.RunID),
		logging.Int("items", d.ItemCount()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}
