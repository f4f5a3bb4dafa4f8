package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"newsdigest/internal/delivery"
	"newsdigest/internal/digest"
	"newsdigest/internal/logging"
	"newsdigest/internal/store"
)

func newDigestCommand(ctx *commandContext) *cobra.Command {
	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Inspect and re-send persisted digests",
	}
	digestCmd.AddCommand(newDigestListCommand(ctx))
	digestCmd.AddCommand(newDigestShowCommand(ctx))
	digestCmd.AddCommand(newDigestSendCommand(ctx))
	return digestCmd
}

func newDigestListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.ListDigests(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				if records == nil {
					records = []store.DigestRecord{}
				}
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No digests yet")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.RunID,
					formatWhen(record.GeneratedAt),
					formatWhen(record.WindowStart) + " → " + formatWhen(record.WindowEnd),
					strconv.Itoa(record.ItemCount),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Run", "Generated", "Window", "Items"}, rows, 3))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of digests to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func newDigestShowCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print a digest (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDigest(cmd.Context(), ctx, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "markdown", "md":
				fmt.Fprint(out, digest.CombinedMarkdown(d))
			case "json":
				return writeJSON(cmd, d)
			case "telegram":
				fmt.Fprintln(out, delivery.RenderTelegram(d))
			default:
				return fmt.Errorf("unknown format %q (want markdown, json or telegram)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: markdown, json or telegram")
	return cmd
}

func newDigestSendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "send [run-id]",
		Short: "Deliver a persisted digest again (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger(cmd)
			if err != nil {
				return err
			}
			deliverer := delivery.NewFromConfig(cfg, logging.NewComponentLogger(logger, "delivery"))
			if deliverer.Name() == "noop" {
				return errors.New("no delivery target configured; enable [telegram], set [nats] url or [ntfy] topic_url")
			}
			d, err := loadDigest(cmd.Context(), ctx, args)
			if err != nil {
				return err
			}
			if err := deliverer.Deliver(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Digest %s sent (%d items)\n", d.RunID, d.ItemCount())
			return nil
		},
	}
}

func loadDigest(ctx context.Context, cc *commandContext, args []string) (digest.Digest, error) {
	st, err := cc.openStore()
	if err != nil {
		return digest.Digest{}, err
	}
	defer st.Close()

	var record *store.DigestRecord
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		record, err = st.GetDigest(ctx, strings.TrimSpace(args[0]))
	} else {
		record, err = st.LatestDigest(ctx)
	}
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.Decode(*record)
}
