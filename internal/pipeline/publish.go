package pipeline

import (
	"context"

	"newsdigest/internal/digest"
	"newsdigest/internal/logging"
	"newsdigest/internal/persona"
	"newsdigest/internal/services"
)

// publish assembles the digest from everything accepted inside the window,
// persists it and then delivers it. Delivery and mirror failures do not fail
// the run.
func (r *Runner) publish(ctx context.Context, personas []persona.Definition, summary *Summary) error {
	ctx = services.WithStage(ctx, "publish")
	logger := logging.WithContext(ctx, r.deps.Logger)
	now := r.deps.Clock()
	window := r.cfg.Window()

	accepted := make(map[string][]digest.Entry, len(personas))
	for _, def := range personas {
		rows, err := r.deps.Store.Accepted(ctx, def.Name, now.Add(-window))
		if err != nil {
			return services.Wrap(services.ErrStore, "publish", "load accepted", def.Name, err)
		}
		accepted[def.Name] = digest.FromAccepted(rows)
	}
	d := digest.Assemble(summary.RunID, accepted, personas, r.cfg.Pipeline.MaxItems, window, now)
	summary.Digest = d
	summary.DigestItems = d.ItemCount()

	record, err := d.Record()
	if err != nil {
		return services.Wrap(services.ErrStore, "publish", "encode digest", "", err)
	}
	if err := r.deps.Store.SaveDigest(ctx, record); err != nil {
		return services.Wrap(services.ErrStore, "publish", "save digest", "", err)
	}
	artifacts, err := digest.Render(d, r.cfg.Artifacts.Markdown)
	if err != nil {
		return services.Wrap(services.ErrStore, "publish", "render artifacts", "", err)
	}
	paths, err := digest.WriteArtifacts(r.cfg.Paths.OutDir, artifacts)
	if err != nil {
		return services.Wrap(services.ErrStore, "publish", "write artifacts", r.cfg.Paths.OutDir, err)
	}
	summary.Artifacts = paths
	logger.Info("digest persisted",
		logging.Int("items", summary.DigestItems),
		logging.Int("sections", len(d.Sections)),
		logging.Int("artifacts", len(paths)),
	)

	if r.deps.Mirror != nil {
		keys, err := r.deps.Mirror.Upload(ctx, d.Date(), artifacts)
		summary.Mirrored = keys
		if err != nil {
			logging.WarnWithContext(logger, "artifact mirror failed", "mirror_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "local artifacts are intact; check the [artifacts] s3 settings"),
			)
		}
	}

	summary.DeliveredTo = r.deps.Deliverer.Name()
	if err := r.deps.Deliverer.Deliver(ctx, d); err != nil {
		summary.DeliveryError = err.Error()
		return nil
	}
	summary.Delivered = true
	return nil
}
