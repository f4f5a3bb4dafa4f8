package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsdigest/internal/api"
	"newsdigest/internal/store"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect stored items",
	}
	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsStatsCommand(ctx))
	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses   []string
		limit      int
		sinceHours int
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.ListFilter{Limit: limit}
			for _, raw := range statuses {
				status, ok := store.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			if sinceHours > 0 {
				filter.Since = time.Now().Add(-time.Duration(sinceHours) * time.Hour)
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := st.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if jsonOut {
				dtos := make([]api.Item, 0, len(items))
				for _, item := range items {
					dtos = append(dtos, api.FromItem(item))
				}
				return writeJSON(cmd, dtos)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No items found")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					strconv.FormatInt(item.ID, 10),
					string(item.Status),
					strconv.Itoa(item.Engagement.Score),
					formatWhen(item.ObservedAt),
					acceptedBy(item),
					truncateText(item.Title, 60),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Status", "Points", "Observed", "Accepted by", "Title"}, rows, 0, 2))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of items")
	cmd.Flags().IntVar(&sinceHours, "since-hours", 0, "Only items observed in the last N hours")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func newItemsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(stats))
			for _, status := range store.AllStatuses() {
				rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, 1))
			return nil
		},
	}
}

func acceptedBy(item *store.Item) string {
	var names []string
	for name, verdict := range item.Verdicts {
		if verdict.Accepted {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
