package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"newsdigest/internal/config"
	"newsdigest/internal/dedup"
	"newsdigest/internal/delivery"
	"newsdigest/internal/digest"
	"newsdigest/internal/evaluator"
	"newsdigest/internal/feed"
	"newsdigest/internal/logging"
	"newsdigest/internal/persona"
	"newsdigest/internal/prefilter"
	"newsdigest/internal/services"
	"newsdigest/internal/store"
)

// ErrRunInProgress is returned when another run holds the lock.
var ErrRunInProgress = errors.New("another run is in progress")

// ArtifactMirror copies rendered artifacts to secondary storage.
type ArtifactMirror interface {
	Upload(ctx context.Context, date string, artifacts []digest.Artifact) ([]string, error)
}

// Deps are the collaborators a Runner sequences. Deliverer and Mirror are
// optional.
type Deps struct {
	Store     *store.Store
	Source    feed.Source
	Filter    *prefilter.Filter
	Dedup     *dedup.Deduplicator
	Evaluator *evaluator.Evaluator
	Personas  *persona.Registry
	Deliverer delivery.Deliverer
	Mirror    ArtifactMirror
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Runner executes pipeline runs.
type Runner struct {
	cfg  *config.Config
	deps Deps
	lock *flock.Flock
}

// New validates deps and constructs a Runner.
func New(cfg *config.Config, deps Deps) (*Runner, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("pipeline: config is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Source == nil:
		return nil, errors.New("pipeline: feed source is required")
	case deps.Filter == nil:
		return nil, errors.New("pipeline: prefilter is required")
	case deps.Dedup == nil:
		return nil, errors.New("pipeline: deduplicator is required")
	case deps.Evaluator == nil:
		return nil, errors.New("pipeline: evaluator is required")
	case deps.Personas == nil:
		return nil, errors.New("pipeline: persona registry is required")
	}
	if deps.Deliverer == nil {
		deps.Deliverer = delivery.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	deps.Logger = logging.NewComponentLogger(deps.Logger, "pipeline")
	return &Runner{cfg: cfg, deps: deps, lock: flock.New(cfg.LockPath())}, nil
}

// Run executes one run under the run lock.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "run", "prepare", "", err)
	}
	locked, err := r.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s)", ErrRunInProgress, r.cfg.LockPath())
	}
	defer func() {
		_ = r.lock.Unlock()
	}()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.deps.Logger)
	summary := &Summary{RunID: runID, StartedAt: r.deps.Clock()}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("window_hours", r.cfg.Pipeline.WindowHours),
		logging.Int("eval_max_items", r.cfg.Pipeline.EvalMaxItems),
	)
	if err := r.run(ctx, summary); err != nil {
		summary.FinishedAt = r.deps.Clock()
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		return summary, err
	}
	summary.FinishedAt = r.deps.Clock()
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("fetched", summary.Fetched),
		logging.Int("inserted", summary.Inserted),
		logging.Int("duplicates", summary.Duplicates),
		logging.Int("accepted", summary.Accepted),
		logging.Int("digest_items", summary.DigestItems),
		logging.Duration("elapsed", summary.Elapsed()),
	)
	return summary, nil
}

func (r *Runner) run(ctx context.Context, summary *Summary) error {
	personas := r.deps.Personas.Enabled()
	if len(personas) == 0 {
		return services.Wrap(services.ErrConfiguration, "run", "personas", "no persona is enabled", nil)
	}

	if err := r.ingest(ctx, summary); err != nil {
		return err
	}
	registered, err := r.deps.Dedup.Rebuild(ctx)
	if err != nil {
		return err
	}
	summary.IndexSize = registered

	candidates, err := r.deps.Store.GetRecent(ctx, r.cfg.Window(), store.StatusNew)
	if err != nil {
		return services.Wrap(services.ErrStore, "select", "get recent", "", err)
	}
	summary.Candidates = len(candidates)

	passed, err := r.prefilter(ctx, candidates, summary)
	if err != nil {
		return err
	}
	batch := selectBatch(passed, r.cfg.Pipeline.EvalMaxItems)
	summary.Deferred = len(passed) - len(batch)

	survivors, err := r.deduplicate(ctx, registrationOrder(batch), summary)
	if err != nil {
		return err
	}

	// Items left EVALUATED by an interrupted run are finished here.
	stranded, err := r.deps.Store.GetRecent(ctx, r.cfg.Window(), store.StatusEvaluated)
	if err != nil {
		return services.Wrap(services.ErrStore, "select", "get interrupted", "", err)
	}
	summary.Resumed = len(stranded)
	if len(stranded) > 0 {
		logging.WithContext(ctx, r.deps.Logger).Info("resuming interrupted evaluations",
			logging.String(logging.FieldEventType, "evaluation_resumed"),
			logging.Int("items", len(stranded)),
		)
	}
	if err := r.evaluate(ctx, append(stranded, survivors...), personas, summary); err != nil {
		return err
	}
	return r.publish(ctx, personas, summary)
}
