package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsdigest/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print a summary",
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

			runner, closeRunner, err := newRunner(cfg, st, logger)
			if err != nil {
				return err
			}
			defer closeRunner()

			summary, err := runner.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd, summaryJSON(summary))
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the summary as JSON")
	return cmd
}

type runSummaryJSON struct {
	RunID          string   `json:"run_id"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	Fetched        int      `json:"fetched"`
	Inserted       int      `json:"inserted"`
	Candidates     int      `json:"candidates"`
	PrefilteredOut int      `json:"prefiltered_out"`
	Deferred       int      `json:"deferred"`
	Duplicates     int      `json:"duplicates"`
	EmbedFailures  int      `json:"embed_failures"`
	Resumed        int      `json:"resumed"`
	Evaluated      int      `json:"evaluated"`
	EvalFailures   int      `json:"eval_failures"`
	Accepted       int      `json:"accepted"`
	Rejected       int      `json:"rejected"`
	DigestItems    int      `json:"digest_items"`
	Artifacts      []string `json:"artifacts"`
	Mirrored       []string `json:"mirrored,omitempty"`
	DeliveredTo    string   `json:"delivered_to"`
	DeliveryError  string   `json:"delivery_error,omitempty"`
}

func summaryJSON(s *pipeline.Summary) runSummaryJSON {
	return runSummaryJSON{
		RunID:          s.RunID,
		ElapsedSeconds: s.Elapsed().Seconds(),
		Fetched:        s.Fetched,
		Inserted:       s.Inserted,
		Candidates:     s.Candidates,
		PrefilteredOut: s.PrefilteredOut,
		Deferred:       s.Deferred,
		Duplicates:     s.Duplicates,
		EmbedFailures:  s.EmbedFailures,
		Resumed:        s.Resumed,
		Evaluated:      s.Evaluated,
		EvalFailures:   s.EvalFailures,
		Accepted:       s.Accepted,
		Rejected:       s.Rejected,
		DigestItems:    s.DigestItems,
		Artifacts:      s.Artifacts,
		Mirrored:       s.Mirrored,
		DeliveredTo:    s.DeliveredTo,
		DeliveryError:  s.DeliveryError,
	}
}

func printSummary(out io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(out, "Run %s finished in %s\n", s.RunID, s.Elapsed().Round(time.Millisecond))
	rows := [][]string{
		{"Fetched", strconv.Itoa(s.Fetched)},
		{"New items", strconv.Itoa(s.Inserted)},
		{"Candidates", strconv.Itoa(s.Candidates)},
		{"Prefiltered out", strconv.Itoa(s.PrefilteredOut)},
		{"Deferred", strconv.Itoa(s.Deferred)},
		{"Duplicates", strconv.Itoa(s.Duplicates)},
		{"Embedding failures", strconv.Itoa(s.EmbedFailures)},
		{"Resumed", strconv.Itoa(s.Resumed)},
		{"Evaluated", strconv.Itoa(s.Evaluated)},
		{"Evaluation failures", strconv.Itoa(s.EvalFailures)},
		{"Accepted", strconv.Itoa(s.Accepted)},
		{"Rejected", strconv.Itoa(s.Rejected)},
		{"Digest items", strconv.Itoa(s.DigestItems)},
	}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Count"}, rows, 1))

	for _, section := range s.Digest.Sections {
		fmt.Fprintf(out, "\n%s (%d)\n", section.SectionTitle(), len(section.Entries))
		for i, entry := range section.Entries {
			fmt.Fprintf(out, "  %d. [%d] %s\n", i+1, entry.Verdict.RelevanceScore, entry.Item.Title)
		}
	}
	if len(s.Artifacts) > 0 {
		fmt.Fprintf(out, "\nArtifacts:\n  %s\n", strings.Join(s.Artifacts, "\n  "))
	}
	switch {
	case s.DeliveryError != "":
		fmt.Fprintf(out, "\nDelivery via %s failed: %s\n", s.DeliveredTo, s.DeliveryError)
	case s.DeliveredTo != "" && s.DeliveredTo != "noop":
		fmt.Fprintf(out, "\nDelivered via %s\n", s.DeliveredTo)
	}
}
