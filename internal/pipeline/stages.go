package pipeline

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"newsdigest/internal/logging"
	"newsdigest/internal/persona"
	"newsdigest/internal/services"
	"newsdigest/internal/store"
)

func (r *Runner) ingest(ctx context.Context, summary *Summary) error {
	ctx = services.WithStage(ctx, "ingest")
	source := r.deps.Source
	records, err := source.Fetch(ctx)
	if err != nil {
		return services.Wrap(services.ErrIngestion, "ingest", source.Name(), "fetch feed", err)
	}
	summary.Fetched = len(records)

	observedAt := r.deps.Clock().UTC()
	for _, record := range records {
		_, created, err := r.deps.Store.Upsert(ctx, record.Item(source.Name(), observedAt))
		if err != nil {
			return services.Wrap(services.ErrStore, "ingest", "upsert", record.SourceID, err)
		}
		if created {
			summary.Inserted++
		}
	}
	logging.WithContext(ctx, r.deps.Logger).Info("feed ingested",
		logging.String("source", source.Name()),
		logging.Int("fetched", summary.Fetched),
		logging.Int("inserted", summary.Inserted),
	)
	return nil
}

func (r *Runner) prefilter(ctx context.Context, candidates []*store.Item, summary *Summary) ([]*store.Item, error) {
	ctx = services.WithStage(ctx, "prefilter")
	passed := make([]*store.Item, 0, len(candidates))
	for _, item := range candidates {
		decision := r.deps.Filter.Check(*item)
		if decision.Pass {
			passed = append(passed, item)
			continue
		}
		message := decision.Reason
		if decision.Detail != "" {
			message += ": " + decision.Detail
		}
		if err := r.deps.Store.MarkStatus(ctx, item.ID, store.StatusPrefilteredOut, message); err != nil {
			return nil, services.Wrap(services.ErrStore, "prefilter", "mark status", fmt.Sprintf("item %d", item.ID), err)
		}
		summary.PrefilteredOut++
		logging.WithContext(services.WithItemID(ctx, item.ID), r.deps.Logger).Debug("item prefiltered out",
			logging.Args(logging.DecisionAttrs("prefilter", "reject", message)...)...,
		)
	}
	return passed, nil
}

// selectBatch orders items by engagement (score, then comments) descending,
// then most recently observed, then lowest ID, and keeps the first limit.
// Items beyond the limit stay NEW for a later run.
func selectBatch(items []*store.Item, limit int) []*store.Item {
	ordered := append([]*store.Item(nil), items...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Engagement != b.Engagement {
			return b.Engagement.Less(a.Engagement)
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}

// registrationOrder returns the batch oldest observed first, then lowest ID,
// so a later copy of a story is the one marked duplicate.
func registrationOrder(batch []*store.Item) []*store.Item {
	ordered := append([]*store.Item(nil), batch...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}
		return a.ID < b.ID
	})
	return ordered
}

// deduplicate embeds the batch on the worker pool, then registers items one
// at a time in batch order so each is compared with every earlier survivor.
func (r *Runner) deduplicate(ctx context.Context, batch []*store.Item, summary *Summary) ([]*store.Item, error) {
	ctx = services.WithStage(ctx, "dedup")
	embedErrs := make([]error, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for i, item := range batch {
		g.Go(func() error {
			embedErrs[i] = r.deps.Dedup.EnsureEmbedding(gctx, item)
			if services.IsFatal(embedErrs[i]) {
				return embedErrs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	survivors := make([]*store.Item, 0, len(batch))
	for i, item := range batch {
		itemCtx := services.WithItemID(ctx, item.ID)
		err := embedErrs[i]
		if err == nil {
			var decision dedupDecision
			decision, err = r.register(itemCtx, item)
			if err == nil && decision.duplicate {
				if markErr := r.deps.Store.MarkStatus(itemCtx, item.ID, store.StatusDuplicate, decision.message); markErr != nil {
					return nil, services.Wrap(services.ErrStore, "dedup", "mark duplicate", fmt.Sprintf("item %d", item.ID), markErr)
				}
				summary.Duplicates++
				continue
			}
		}
		if err != nil {
			if services.IsFatal(err) || ctx.Err() != nil {
				return nil, err
			}
			if markErr := r.deps.Store.MarkStatus(itemCtx, item.ID, store.StatusRejected, err.Error()); markErr != nil {
				return nil, services.Wrap(services.ErrStore, "dedup", "mark rejected", fmt.Sprintf("item %d", item.ID), markErr)
			}
			summary.EmbedFailures++
			logging.WarnWithContext(logging.WithContext(itemCtx, r.deps.Logger), "embedding failed; item rejected", "embedding_failed",
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the embedding backend with `newsdigest doctor`"),
			)
			continue
		}
		survivors = append(survivors, item)
	}
	return survivors, nil
}

type dedupDecision struct {
	duplicate bool
	message   string
}

func (r *Runner) register(ctx context.Context, item *store.Item) (dedupDecision, error) {
	decision, err := r.deps.Dedup.CheckAndRegister(ctx, item)
	if err != nil {
		return dedupDecision{}, err
	}
	if !decision.IsDuplicate || decision.NearestItemID == nil {
		return dedupDecision{}, nil
	}
	return dedupDecision{
		duplicate: true,
		message:   fmt.Sprintf("near-duplicate of item %d (similarity %.3f)", *decision.NearestItemID, decision.NearestSimilarity),
	}, nil
}

type evalJob struct {
	item *store.Item
	def  persona.Definition
}

type evalResult struct {
	accepted bool
	failed   bool
}

// evaluate scores every survivor against every persona on the worker pool.
// Each (item, persona) verdict is written as soon as it is known; statuses
// are settled once all personas have answered. Personas that already hold a
// valid verdict for an item are not asked again.
func (r *Runner) evaluate(ctx context.Context, items []*store.Item, personas []persona.Definition, summary *Summary) error {
	ctx = services.WithStage(ctx, "evaluate")
	jobs := make([]evalJob, 0, len(items)*len(personas))
	for _, item := range items {
		for _, def := range personas {
			if pv, ok := item.Verdicts[def.Name]; ok && pv.Verdict != nil {
				continue
			}
			jobs = append(jobs, evalJob{item: item, def: def})
		}
	}
	results := make([]evalResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for i, job := range jobs {
		g.Go(func() error {
			result, err := r.evaluateOne(gctx, job)
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, result := range results {
		if result.failed {
			summary.EvalFailures++
		}
	}

	for _, item := range items {
		status, err := r.deps.Store.Settle(ctx, item.ID)
		if err != nil {
			return services.Wrap(services.ErrStore, "evaluate", "settle", fmt.Sprintf("item %d", item.ID), err)
		}
		summary.Evaluated++
		if status == store.StatusAccepted {
			summary.Accepted++
		} else {
			summary.Rejected++
		}
	}
	return nil
}

func (r *Runner) evaluateOne(ctx context.Context, job evalJob) (evalResult, error) {
	ctx = services.WithPersona(services.WithItemID(ctx, job.item.ID), job.def.Name)
	logger := logging.WithContext(ctx, r.deps.Logger)

	verdict, evalErr := r.deps.Evaluator.Evaluate(ctx, job.item, job.def)
	if evalErr != nil && ctx.Err() != nil {
		return evalResult{}, ctx.Err()
	}

	var (
		accepted bool
		reason   string
	)
	switch {
	case evalErr != nil:
		reason = evalErr.Error()
	case !verdict.Keep:
		reason = "persona decided to drop"
	case verdict.RelevanceScore < job.def.MinScore:
		reason = fmt.Sprintf("score %d below minimum %d", verdict.RelevanceScore, job.def.MinScore)
	default:
		accepted = job.def.Accepts(verdict)
	}

	if err := r.deps.Store.RecordVerdict(ctx, job.item.ID, job.def.Name, verdict, accepted, reason); err != nil {
		return evalResult{}, services.Wrap(services.ErrStore, "evaluate", "record verdict", fmt.Sprintf("item %d", job.item.ID), err)
	}

	if evalErr != nil {
		logging.WarnWithContext(logger, "evaluation failed; persona verdict recorded as rejected", "evaluation_failed",
			logging.String(logging.FieldErrorKind, services.Kind(evalErr)),
			logging.Error(evalErr),
		)
		return evalResult{failed: true}, nil
	}
	result := "reject"
	if accepted {
		result = "accept"
	}
	logger.Debug("persona verdict",
		logging.Args(append(
			[]logging.Attr{logging.Int("score", verdict.RelevanceScore)},
			logging.DecisionAttrs("evaluate", result, reason)...,
		)...)...,
	)
	return evalResult{accepted: accepted}, nil
}

func (r *Runner) concurrency() int {
	if r.cfg.Pipeline.Concurrency > 0 {
		return r.cfg.Pipeline.Concurrency
	}
	return 1
}
