package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Similarity index maintenance",
	}
	indexCmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Reload the index from stored embeddings inside the dedup horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger(cmd)
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			deduplicator, closeIndex, err := newDeduplicator(cfg, st, logger)
			if err != nil {
				return err
			}
			defer closeIndex()

			count, err := deduplicator.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d items (%s backend, horizon %s)\n",
				count, cfg.VectorIndex.Backend, cfg.DedupHorizon())
			return nil
		},
	})
	return indexCmd
}
