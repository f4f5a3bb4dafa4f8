package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"newsdigest/internal/config"
	"newsdigest/internal/persona"
	"newsdigest/internal/store"
	"newsdigest/internal/vectorindex"
)

const doctorProbeTimeout = 10 * time.Second

type doctorCheck struct {
	label   string
	kind    checkKind
	message string
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database and model reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger(cmd)
			if err != nil {
				return err
			}

			checks := []doctorCheck{configCheck(ctx.configPath, cfg)}
			checks = append(checks, databaseCheck(cmd.Context(), cfg))
			checks = append(checks, personaCheck(cfg))
			checks = append(checks, probe(cmd.Context(), "Chat model", func(ctx context.Context) (string, error) {
				if err := newCompleter(cfg, logger).HealthCheck(ctx); err != nil {
					return "", err
				}
				return cfg.Ollama.Model, nil
			}))
			checks = append(checks, probe(cmd.Context(), "Embeddings", func(ctx context.Context) (string, error) {
				if err := embeddingHealth(ctx, cfg); err != nil {
					return "", err
				}
				return cfg.Embedding.Provider, nil
			}))
			if cfg.VectorIndex.Backend == "qdrant" {
				checks = append(checks, probe(cmd.Context(), "Vector index", func(ctx context.Context) (string, error) {
					q, err := vectorindex.NewQdrant(cfg.VectorIndex.QdrantAddr, cfg.VectorIndex.Collection, logger)
					if err != nil {
						return "", err
					}
					defer q.Close()
					version, err := q.HealthCheck(ctx)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("qdrant %s at %s", version, cfg.VectorIndex.QdrantAddr), nil
				}))
			} else {
				checks = append(checks, doctorCheck{label: "Vector index", kind: checkInfo, message: "in-memory (rebuilt each run)"})
			}
			checks = append(checks, deliveryCheck(cfg))
			checks = append(checks, lockCheck(cfg))

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0
			for _, check := range checks {
				if check.kind == checkError {
					problems++
				}
				fmt.Fprintln(out, renderCheckLine(check.label, check.kind, check.message, colorize))
			}
			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func configCheck(path string, cfg *config.Config) doctorCheck {
	check := doctorCheck{label: "Config", kind: checkOK, message: path}
	if path == "" {
		check.kind = checkInfo
		check.message = "defaults (no config file found)"
	}
	if err := cfg.Validate(); err != nil {
		check.kind = checkError
		check.message = err.Error()
	}
	return check
}

func databaseCheck(ctx context.Context, cfg *config.Config) doctorCheck {
	check := doctorCheck{label: "Database"}
	st, err := store.Open(cfg)
	if err != nil {
		check.kind = checkError
		check.message = err.Error()
		return check
	}
	defer st.Close()

	health, err := st.CheckHealth(ctx)
	switch {
	case err != nil:
		check.kind = checkError
		check.message = err.Error()
	case health.Error != "":
		check.kind = checkError
		check.message = health.Error
	case health.SchemaVersion != store.SchemaVersion():
		check.kind = checkError
		check.message = fmt.Sprintf("schema version %d, expected %d", health.SchemaVersion, store.SchemaVersion())
	case health.IntegrityCheck != "ok":
		check.kind = checkError
		check.message = "integrity check: " + health.IntegrityCheck
	default:
		check.kind = checkOK
		check.message = fmt.Sprintf("%s (%d items, schema v%d)", health.DBPath, health.TotalItems, health.SchemaVersion)
	}
	return check
}

func personaCheck(cfg *config.Config) doctorCheck {
	registry, err := persona.Load(cfg)
	if err != nil {
		return doctorCheck{label: "Personas", kind: checkError, message: err.Error()}
	}
	var names []string
	for _, def := range registry.Enabled() {
		names = append(names, def.Name)
	}
	if len(names) == 0 {
		return doctorCheck{label: "Personas", kind: checkError, message: "no persona enabled"}
	}
	return doctorCheck{label: "Personas", kind: checkOK, message: strings.Join(names, ", ")}
}

func probe(parent context.Context, label string, fn func(context.Context) (string, error)) doctorCheck {
	ctx, cancel := context.WithTimeout(parent, doctorProbeTimeout)
	defer cancel()
	detail, err := fn(ctx)
	if err != nil {
		return doctorCheck{label: label, kind: checkError, message: err.Error()}
	}
	return doctorCheck{label: label, kind: checkOK, message: detail}
}

func deliveryCheck(cfg *config.Config) doctorCheck {
	var targets []string
	if cfg.Telegram.Enabled {
		targets = append(targets, "telegram")
	}
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		targets = append(targets, "nats "+cfg.NATS.Subject)
	}
	if cfg.Ntfy.TopicURL != "" {
		targets = append(targets, "ntfy")
	}
	if len(targets) == 0 {
		return doctorCheck{label: "Delivery", kind: checkWarn, message: "no target configured; digests are only written to disk"}
	}
	return doctorCheck{label: "Delivery", kind: checkOK, message: strings.Join(targets, ", ")}
}

func lockCheck(cfg *config.Config) doctorCheck {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return doctorCheck{label: "Run lock", kind: checkError, message: err.Error()}
	}
	if !locked {
		return doctorCheck{label: "Run lock", kind: checkWarn, message: "a run is in progress"}
	}
	_ = lock.Unlock()
	return doctorCheck{label: "Run lock", kind: checkOK, message: "free"}
}
