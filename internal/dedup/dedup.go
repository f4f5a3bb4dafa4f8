package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsdigest/internal/logging"
	"newsdigest/internal/services"
	"newsdigest/internal/store"
	"newsdigest/internal/vectorindex"
)

const maxEmbedBodyRunes = 600

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence the deduplicator needs.
type Store interface {
	SetEmbedding(ctx context.Context, id int64, vec []float32) error
	IndexEntries(ctx context.Context, since time.Time) ([]store.IndexEntry, error)
}

// Decision is the outcome of a dedup check.
type Decision struct {
	IsDuplicate       bool
	NearestSimilarity float64
	NearestItemID     *int64
}

// Deduplicator detects near-duplicates by embedding similarity. Registration
// calls are serialized so each candidate is compared against every earlier
// registered candidate of the same run.
type Deduplicator struct {
	mu          sync.Mutex
	embedder    Embedder
	store       Store
	index       vectorindex.Index
	threshold   float64
	horizon     time.Duration
	callTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
	dims        int
}

// Option customizes a Deduplicator.
type Option func(*Deduplicator)

// WithCallTimeout bounds each embedding call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Deduplicator) {
		d.callTimeout = timeout
	}
}

// WithClock overrides the time source used for the horizon.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deduplicator) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New constructs a Deduplicator. threshold is the cosine similarity at or
// above which an item is a duplicate; horizon limits how far back neighbours
// are searched.
func New(embedder Embedder, st Store, index vectorindex.Index, threshold float64, horizon time.Duration, opts ...Option) *Deduplicator {
	d := &Deduplicator{
		embedder:  embedder,
		store:     st,
		index:     index,
		threshold: threshold,
		horizon:   horizon,
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EmbedText is the text embedded for an item.
func EmbedText(item *store.Item) string {
	body := item.Body
	if runes := []rune(body); len(runes) > maxEmbedBodyRunes {
		body = string(runes[:maxEmbedBodyRunes])
	}
	return item.Title + "\n" + item.URL + "\n" + body
}

// Rebuild reloads the index from registered items inside the horizon. Only
// vectors with the dimension of the newest entry are loaded; older vectors
// from a previous embedding model are skipped.
func (d *Deduplicator) Rebuild(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries, err := d.store.IndexEntries(ctx, d.now().Add(-d.horizon))
	if err != nil {
		return 0, services.Wrap(services.ErrStore, "dedup", "rebuild", "load entries", err)
	}
	dims := 0
	if len(entries) > 0 {
		dims = len(entries[len(entries)-1].Vector)
	}
	converted := make([]vectorindex.Entry, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Vector) != dims {
			continue
		}
		converted = append(converted, vectorindex.Entry{ItemID: entry.ItemID, ObservedAt: entry.ObservedAt, Vector: entry.Vector})
	}
	if skipped := len(entries) - len(converted); skipped > 0 {
		logging.WarnWithContext(d.logger, "stale embeddings skipped", "stale_embeddings_skipped",
			logging.Int("skipped", skipped),
			logging.Int("dims", dims),
			logging.String(logging.FieldErrorHint, "items embedded by an earlier model are not compared"),
		)
	}
	if err := d.index.Rebuild(ctx, converted); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	d.dims = dims
	return len(converted), nil
}

// EnsureEmbedding computes and persists the item's embedding when missing.
// It may run concurrently for different items. A failed call is retried once.
func (d *Deduplicator) EnsureEmbedding(ctx context.Context, item *store.Item) error {
	if item.HasEmbedding() {
		return nil
	}
	text := EmbedText(item)
	var (
		vec []float32
		err error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		vec, err = d.embedOnce(ctx, text)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return services.Wrap(services.ErrEmbedding, "dedup", "embed", fmt.Sprintf("item %d", item.ID), err)
	}
	if err := d.store.SetEmbedding(ctx, item.ID, vec); err != nil && !errors.Is(err, store.ErrEmbeddingExists) {
		return services.Wrap(services.ErrStore, "dedup", "persist embedding", fmt.Sprintf("item %d", item.ID), err)
	}
	item.Embedding = vec
	return nil
}

func (d *Deduplicator) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}
	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("empty embedding")
	}
	return vec, nil
}

// CheckAndRegister decides whether item duplicates a registered item and,
// when it does not, registers it. The item is embedded first if needed.
func (d *Deduplicator) CheckAndRegister(ctx context.Context, item *store.Item) (Decision, error) {
	if err := d.EnsureEmbedding(ctx, item); err != nil {
		return Decision{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dims != 0 && len(item.Embedding) != d.dims {
		if err := d.resetLocked(ctx, len(item.Embedding)); err != nil {
			return Decision{}, err
		}
	}

	since := d.now().Add(-d.horizon)
	match, err := d.index.Nearest(ctx, item.Embedding, since, item.ID)
	if err != nil {
		return Decision{}, services.Wrap(services.ErrEmbedding, "dedup", "nearest", fmt.Sprintf("item %d", item.ID), err)
	}
	var decision Decision
	if match != nil {
		id := match.ItemID
		decision.NearestItemID = &id
		decision.NearestSimilarity = match.Similarity
		decision.IsDuplicate = match.Similarity >= d.threshold
	}

	attrs := []logging.Attr{
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Float64("similarity", decision.NearestSimilarity),
	}
	if decision.NearestItemID != nil {
		attrs = append(attrs, logging.Int64("nearest_item_id", *decision.NearestItemID))
	}
	if decision.IsDuplicate {
		attrs = append(attrs, logging.DecisionAttrs("dedup", "duplicate", "similarity at or above threshold")...)
		d.logger.Info("duplicate found", logging.Args(attrs...)...)
		return decision, nil
	}

	if err := d.index.Add(ctx, vectorindex.Entry{ItemID: item.ID, ObservedAt: item.ObservedAt, Vector: item.Embedding}); err != nil {
		return Decision{}, services.Wrap(services.ErrEmbedding, "dedup", "register", fmt.Sprintf("item %d", item.ID), err)
	}
	d.dims = len(item.Embedding)
	attrs = append(attrs, logging.DecisionAttrs("dedup", "distinct", "below threshold")...)
	d.logger.Debug("item registered", logging.Args(attrs...)...)
	return decision, nil
}

// resetLocked empties the index when the embedding model changed between
// runs. Registered vectors of the old model cannot be compared with new ones.
func (d *Deduplicator) resetLocked(ctx context.Context, dims int) error {
	logging.WarnWithContext(d.logger, "embedding dimension changed; index reset", "embedding_model_changed",
		logging.Int("previous_dims", d.dims),
		logging.Int("dims", dims),
		logging.Int("dropped", d.index.Len()),
		logging.String(logging.FieldErrorHint, "earlier items are not compared with new embeddings"),
	)
	if err := d.index.Rebuild(ctx, nil); err != nil {
		return services.Wrap(services.ErrEmbedding, "dedup", "reset index", fmt.Sprintf("%d dimensions", dims), err)
	}
	d.dims = dims
	return nil
}

// Len reports how many items are registered in the index.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index.Len()
}
