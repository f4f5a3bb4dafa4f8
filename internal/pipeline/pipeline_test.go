package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"newsdigest/internal/config"
	"newsdigest/internal/dedup"
	"newsdigest/internal/delivery"
	"newsdigest/internal/digest"
	"newsdigest/internal/evaluator"
	"newsdigest/internal/feed"
	"newsdigest/internal/persona"
	"newsdigest/internal/pipeline"
	"newsdigest/internal/prefilter"
	"newsdigest/internal/services"
	"newsdigest/internal/store"
	"newsdigest/internal/testsupport"
	"newsdigest/internal/vectorindex"
)

const (
	titleX = "X: agents framework launch"
	titleA = "A: agents framework launched again"
	titleB = "B: new open weights model"
	titleC = "C: inference server release"
	titleD = "D: fine-tuning benchmark notes"
)

type harness struct {
	cfg       *config.Config
	st        *store.Store
	embedder  *testsupport.StubEmbedder
	completer *testsupport.StubCompleter
	runner    *pipeline.Runner

	mu       sync.Mutex
	prompted map[string]int
}

type replyFunc func(product bool, title string) (string, error)

func newHarness(t *testing.T, vectors map[string][]float32, reply replyFunc, deliverer delivery.Deliverer, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithFeedFile("feed.json")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)

	h := &harness{
		cfg:      cfg,
		st:       st,
		embedder: testsupport.NewStubEmbedder(vectors),
		prompted: make(map[string]int),
	}
	h.completer = &testsupport.StubCompleter{Respond: func(instructions, title string) (string, error) {
		h.mu.Lock()
		h.prompted[title]++
		h.mu.Unlock()
		return reply(testsupport.IsProductPersona(instructions), title)
	}}

	registry, err := persona.Load(cfg)
	if err != nil {
		t.Fatalf("persona.Load failed: %v", err)
	}
	filter, err := prefilter.New(cfg.Prefilter)
	if err != nil {
		t.Fatalf("prefilter.New failed: %v", err)
	}
	deps := pipeline.Deps{
		Store:     st,
		Source:    feed.NewFileSource(cfg.Feed.FilePath),
		Filter:    filter,
		Dedup:     dedup.New(h.embedder, st, vectorindex.NewFlat(), cfg.Dedup.Threshold, cfg.DedupHorizon()),
		Evaluator: evaluator.New(h.completer),
		Personas:  registry,
	}
	if deliverer != nil {
		deps.Deliverer = deliverer
	}
	runner, err := pipeline.New(cfg, deps)
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	h.runner = runner
	return h
}

func (h *harness) writeFeed(t *testing.T, records ...feed.Record) {
	t.Helper()
	testsupport.WriteJSON(t, h.cfg.Feed.FilePath, records)
}

func (h *harness) run(t *testing.T) *pipeline.Summary {
	t.Helper()
	summary, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return summary
}

func (h *harness) promptCount(title string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prompted[title]
}

func (h *harness) item(t *testing.T, sourceID string) *store.Item {
	t.Helper()
	item, err := h.st.GetBySourceID(context.Background(), sourceID)
	if err != nil {
		t.Fatalf("GetBySourceID(%s) failed: %v", sourceID, err)
	}
	return item
}

func record(sourceID, title string, score, comments int) feed.Record {
	return feed.Record{
		SourceID: sourceID,
		Title:    title,
		URL:      "https://example.com/" + sourceID,
		Score:    score,
		Comments: comments,
	}
}

func sectionTitles(d digest.Digest, personaName string) []string {
	for _, section := range d.Sections {
		if section.Persona != personaName {
			continue
		}
		titles := make([]string, 0, len(section.Entries))
		for _, entry := range section.Entries {
			titles = append(titles, entry.Item.Title)
		}
		return titles
	}
	return nil
}

// genaiByTitle keeps GENAI_NEWS verdicts from scores and drops every product
// idea.
func genaiByTitle(scores map[string]int) replyFunc {
	return func(product bool, title string) (string, error) {
		if product {
			return testsupport.ProductReply(20, false), nil
		}
		score, ok := scores[title]
		if !ok {
			return testsupport.GenaiReply(10, false), nil
		}
		return testsupport.GenaiReply(score, true), nil
	}
}

type failingDeliverer struct{}

func (failingDeliverer) Name() string { return "failing" }

func (failingDeliverer) Deliver(context.Context, digest.Digest) error {
	return errors.New("channel unavailable")
}

func TestRunDropsDuplicatesRanksAndCaps(t *testing.T) {
	vectors := map[string][]float32{
		titleX: {1, 0},
		titleA: {0.95, 0.3122499},
	}
	scores := map[string]int{titleA: 90, titleB: 90, titleC: 90, titleD: 70}
	h := newHarness(t, vectors, genaiByTitle(scores), nil, testsupport.WithPipeline(24, 10, 2))

	h.writeFeed(t, record("hn:1", titleX, 40, 3))
	first := h.run(t)
	if first.Evaluated != 1 || first.Accepted != 0 {
		t.Fatalf("expected X evaluated and rejected, got %+v", first)
	}

	h.writeFeed(t,
		record("hn:1", titleX, 40, 3),
		record("hn:2", titleA, 80, 10),
		record("hn:3", titleB, 100, 20),
		record("hn:4", titleC, 50, 5),
		record("hn:5", titleD, 500, 90),
	)
	summary := h.run(t)

	if summary.Inserted != 4 {
		t.Fatalf("expected 4 new items, got %d", summary.Inserted)
	}
	if summary.Duplicates != 1 || summary.Evaluated != 3 || summary.Accepted != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got := sectionTitles(summary.Digest, "GENAI_NEWS")
	if len(got) != 2 || got[0] != titleB || got[1] != titleC {
		t.Fatalf("GENAI_NEWS entries = %v, want [%s %s]", got, titleB, titleC)
	}
	if products := sectionTitles(summary.Digest, "PRODUCT_IDEAS"); products == nil || len(products) != 0 {
		t.Fatalf("expected an empty PRODUCT_IDEAS section, got %v", products)
	}

	x := h.item(t, "hn:1")
	a := h.item(t, "hn:2")
	if a.Status != store.StatusDuplicate {
		t.Fatalf("expected A duplicate, got %s", a.Status)
	}
	if !strings.Contains(a.ErrorMessage, "item "+itoa(x.ID)) {
		t.Fatalf("expected duplicate message to name X, got %q", a.ErrorMessage)
	}
	if h.promptCount(titleA) != 0 {
		t.Fatal("duplicate must not be evaluated")
	}
	if d := h.item(t, "hn:5"); d.Status != store.StatusAccepted {
		t.Fatalf("expected D accepted even though capped out, got %s", d.Status)
	}

	latest, err := h.st.LatestDigest(context.Background())
	if err != nil {
		t.Fatalf("LatestDigest failed: %v", err)
	}
	if latest.RunID != summary.RunID || latest.ItemCount != 2 {
		t.Fatalf("unexpected persisted digest %+v", latest)
	}
	if len(summary.Artifacts) == 0 {
		t.Fatal("expected artifacts to be written")
	}
	for _, path := range summary.Artifacts {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact %s missing: %v", path, err)
		}
		if filepath.Dir(path) != h.cfg.Paths.OutDir {
			t.Fatalf("artifact %s written outside out_dir", path)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, genaiByTitle(map[string]int{titleB: 90, titleC: 80}), nil)
	h.writeFeed(t, record("hn:3", titleB, 100, 20), record("hn:4", titleC, 50, 5))

	first := h.run(t)
	calls := h.completer.Calls()
	second := h.run(t)

	if second.Inserted != 0 || second.Candidates != 0 || second.Evaluated != 0 {
		t.Fatalf("expected rerun to skip known items, got %+v", second)
	}
	if h.completer.Calls() != calls {
		t.Fatalf("expected no new model calls, got %d more", h.completer.Calls()-calls)
	}
	if h.embedder.Calls(titleB) != 1 {
		t.Fatalf("expected one embedding call for B, got %d", h.embedder.Calls(titleB))
	}
	if first.DigestItems != 2 || second.DigestItems != 2 {
		t.Fatalf("expected both digests to carry 2 items, got %d and %d", first.DigestItems, second.DigestItems)
	}
	if first.RunID == second.RunID {
		t.Fatal("expected distinct run ids")
	}
}

func TestRunHonoursWindow(t *testing.T) {
	h := newHarness(t, nil, genaiByTitle(map[string]int{titleB: 90, "Old story about transformers": 95}), nil)
	old := testsupport.NewItem(t, h.st, "hn:old", "Old story about transformers",
		testsupport.ObservedAgo(30*time.Hour), testsupport.WithEngagement(300, 40))
	h.writeFeed(t, record("hn:3", titleB, 100, 20))

	summary := h.run(t)

	if got := sectionTitles(summary.Digest, "GENAI_NEWS"); len(got) != 1 || got[0] != titleB {
		t.Fatalf("expected only B in digest, got %v", got)
	}
	if h.promptCount(old.Title) != 0 {
		t.Fatal("item outside the window must not be evaluated")
	}
	if stored := h.item(t, "hn:old"); stored.Status != store.StatusNew {
		t.Fatalf("expected old item untouched, got %s", stored.Status)
	}
}

func TestSchemaFailureIsIsolatedPerPersona(t *testing.T) {
	const title = "S: startup builds agent marketplace"
	reply := func(product bool, _ string) (string, error) {
		if product {
			return testsupport.ProductReply(80, true), nil
		}
		return `{"relevance_score": "high"}`, nil
	}
	h := newHarness(t, nil, reply, nil)
	h.writeFeed(t, record("hn:9", title, 120, 30))

	summary := h.run(t)

	if summary.EvalFailures != 1 || summary.Accepted != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	item := h.item(t, "hn:9")
	if item.Status != store.StatusAccepted {
		t.Fatalf("expected item accepted through PRODUCT_IDEAS, got %s", item.Status)
	}
	genai := item.Verdicts["GENAI_NEWS"]
	if genai.Valid() || genai.Accepted || genai.Reason == "" {
		t.Fatalf("expected failed GENAI_NEWS verdict with reason, got %+v", genai)
	}
	if product := item.Verdicts["PRODUCT_IDEAS"]; !product.Accepted {
		t.Fatalf("expected PRODUCT_IDEAS acceptance, got %+v", product)
	}
	if got := sectionTitles(summary.Digest, "PRODUCT_IDEAS"); len(got) != 1 || got[0] != title {
		t.Fatalf("unexpected PRODUCT_IDEAS section %v", got)
	}
	if got := sectionTitles(summary.Digest, "GENAI_NEWS"); len(got) != 0 {
		t.Fatalf("expected empty GENAI_NEWS section, got %v", got)
	}
}

func TestEmbeddingFailureRejectsItem(t *testing.T) {
	const title = "E: embedding backend hiccup"
	h := newHarness(t, nil, genaiByTitle(map[string]int{title: 90, titleB: 90}), nil)
	h.embedder.FailNext(title, 2)
	h.writeFeed(t, record("hn:7", title, 90, 10), record("hn:3", titleB, 100, 20))

	summary := h.run(t)

	if summary.EmbedFailures != 1 || summary.Accepted != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	item := h.item(t, "hn:7")
	if item.Status != store.StatusRejected || item.ErrorMessage == "" {
		t.Fatalf("expected rejected item with error, got %s %q", item.Status, item.ErrorMessage)
	}
	if h.promptCount(title) != 0 {
		t.Fatal("item without embedding must not be evaluated")
	}
}

func TestPrefilterAndEvalCap(t *testing.T) {
	h := newHarness(t, nil, genaiByTitle(map[string]int{titleB: 90, titleC: 90, titleD: 90}), nil,
		testsupport.WithPipeline(24, 2, 6))
	h.writeFeed(t,
		record("hn:3", titleB, 100, 20),
		record("hn:4", titleC, 50, 5),
		record("hn:5", titleD, 500, 90),
		record("hn:6", "Low signal story here", 2, 0),
	)

	summary := h.run(t)

	if summary.PrefilteredOut != 1 || summary.Deferred != 1 || summary.Evaluated != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := h.item(t, "hn:6").Status; got != store.StatusPrefilteredOut {
		t.Fatalf("expected low signal item prefiltered, got %s", got)
	}
	if got := h.item(t, "hn:4").Status; got != store.StatusNew {
		t.Fatalf("expected lowest engagement item deferred, got %s", got)
	}
}

func TestDeliveryFailureKeepsPersistedDigest(t *testing.T) {
	h := newHarness(t, nil, genaiByTitle(map[string]int{titleB: 90}), failingDeliverer{})
	h.writeFeed(t, record("hn:3", titleB, 100, 20))

	summary := h.run(t)

	if summary.Delivered || !strings.Contains(summary.DeliveryError, "channel unavailable") {
		t.Fatalf("expected delivery failure recorded, got %+v", summary)
	}
	if _, err := h.st.GetDigest(context.Background(), summary.RunID); err != nil {
		t.Fatalf("expected digest persisted: %v", err)
	}
}

func TestIngestionFailureAbortsRun(t *testing.T) {
	h := newHarness(t, nil, genaiByTitle(nil), nil)

	_, err := h.runner.Run(context.Background())
	if !errors.Is(err, services.ErrIngestion) || !services.IsFatal(err) {
		t.Fatalf("expected fatal ingestion error, got %v", err)
	}
	if _, err := h.st.LatestDigest(context.Background()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected no digest, got %v", err)
	}
}

func TestRunRefusesConcurrentRun(t *testing.T) {
	h := newHarness(t, nil, genaiByTitle(nil), nil)
	h.writeFeed(t, record("hn:3", titleB, 100, 20))
	if err := h.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	lock := flock.New(h.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	_, err = h.runner.Run(context.Background())
	if !errors.Is(err, pipeline.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestEarlierObservedCopySurvivesDedup(t *testing.T) {
	vectors := map[string][]float32{
		titleX: {1, 0},
		titleA: {0.95, 0.3122499},
	}
	h := newHarness(t, vectors, genaiByTitle(map[string]int{titleX: 90, titleA: 90}), nil)
	older := testsupport.NewItem(t, h.st, "hn:1", titleX,
		testsupport.ObservedAgo(2*time.Hour), testsupport.WithEngagement(40, 3))
	h.writeFeed(t, record("hn:2", titleA, 500, 90))

	summary := h.run(t)

	if summary.Duplicates != 1 || summary.Accepted != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := h.item(t, "hn:1").Status; got != store.StatusAccepted {
		t.Fatalf("expected earlier item accepted, got %s", got)
	}
	later := h.item(t, "hn:2")
	if later.Status != store.StatusDuplicate {
		t.Fatalf("expected later, more engaged copy marked duplicate, got %s", later.Status)
	}
	if !strings.Contains(later.ErrorMessage, "item "+itoa(older.ID)) {
		t.Fatalf("expected duplicate message to name item %d, got %q", older.ID, later.ErrorMessage)
	}
	if h.promptCount(titleA) != 0 {
		t.Fatal("duplicate must not be evaluated")
	}
}

func TestInterruptedEvaluationIsResumed(t *testing.T) {
	const title = "R: agents runtime released"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var interrupt atomic.Bool
	interrupt.Store(true)
	reply := func(product bool, _ string) (string, error) {
		if !product {
			return testsupport.GenaiReply(90, true), nil
		}
		if interrupt.Load() {
			cancel()
			return "", context.Canceled
		}
		return testsupport.ProductReply(20, false), nil
	}
	h := newHarness(t, nil, reply, nil, testsupport.WithConcurrency(1))
	h.writeFeed(t, record("hn:8", title, 120, 30))

	if _, err := h.runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled run, got %v", err)
	}
	stranded := h.item(t, "hn:8")
	if stranded.Status != store.StatusEvaluated {
		t.Fatalf("expected item left EVALUATED, got %s", stranded.Status)
	}
	if _, ok := stranded.Verdicts["PRODUCT_IDEAS"]; ok {
		t.Fatal("cancelled persona must not record a verdict")
	}

	interrupt.Store(false)
	summary := h.run(t)

	if summary.Resumed != 1 || summary.Evaluated != 1 || summary.Accepted != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := h.item(t, "hn:8").Status; got != store.StatusAccepted {
		t.Fatalf("expected resumed item accepted, got %s", got)
	}
	if h.promptCount(title) != 3 {
		t.Fatalf("expected GENAI_NEWS verdict kept and only PRODUCT_IDEAS asked again, got %d prompts", h.promptCount(title))
	}
	if got := sectionTitles(summary.Digest, "GENAI_NEWS"); len(got) != 1 || got[0] != title {
		t.Fatalf("expected resumed item in digest, got %v", got)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
