package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderinc/tgsift/internal/indexer"
	"github.com/renderinc/tgsift/internal/metrics"
	"github.com/renderinc/tgsift/internal/preview"
	"github.com/renderinc/tgsift/internal/search"
)

func newBoundsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bounds <export-dir>",
		Short: "Print the earliest and latest message dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.openIndex(args[0])
			if err != nil {
				return err
			}
			defer idx.Close()

			b, ok, err := idx.DateBounds()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No dated messages")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", b.Min, b.Max)
			return nil
		},
	}
}

func newSendersCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "senders <export-dir> [pattern]",
		Short: "List senders, optionally fuzzy-matching a pattern",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.openIndex(args[0])
			if err != nil {
				return err
			}
			defer idx.Close()

			pattern := ""
			if len(args) == 2 {
				pattern = args[1]
			}
			senders, err := idx.SuggestSenders(pattern, limit)
			if err != nil {
				return err
			}
			if len(senders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching senders")
				return nil
			}
			for _, s := range senders {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s\n", s.Count, s.Sender)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum senders to list")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <export-dir>",
		Short: "Show index statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			idx, err := a.openIndex(args[0])
			if err != nil {
				return err
			}
			defer idx.Close()

			m := idx.Manifest()
			count, err := idx.Count()
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "=== Index Statistics ===")
			fmt.Fprintf(out, "Export:         %s\n", m.ExportDir)
			fmt.Fprintf(out, "Location:       %s\n", idx.Location())
			fmt.Fprintf(out, "Messages:       %d\n", count)
			fmt.Fprintf(out, "Pages scanned:  %d\n", m.Pages)
			fmt.Fprintf(out, "Pages skipped:  %d\n", len(m.Skipped))
			fmt.Fprintf(out, "Built:          %s\n", m.BuiltAt.Local().Format(time.DateTime))
			if b, ok, err := idx.DateBounds(); err == nil && ok {
				fmt.Fprintf(out, "Dates:          %s to %s\n", b.Min, b.Max)
			}
			warnChanged(out, m)
			return nil
		},
	}
}

// warnChanged reports export pages edited after the index was built
func warnChanged(out io.Writer, m search.Manifest) {
	changed, err := indexer.ChangedPages(m)
	if err != nil || len(changed) == 0 {
		return
	}
	fmt.Fprintf(out, "Warning: %d page(s) changed since indexing, rebuild with --force\n", len(changed))
}

func metricsOutcome(err error) string {
	if errors.Is(err, preview.ErrNotFound) {
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeError
}
