package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderinc/tgsift/internal/indexer"
	"github.com/renderinc/tgsift/internal/search"
)

func newIndexCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index <export-dir>",
		Short: "Build the search index of an export",
		Long: `Scans every messages*.html page of the export and writes all messages to a
fresh index in a single commit. An export that is already indexed is reused
unless --force is given. Interrupting the build leaves the export unindexed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd, args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "rebuild even if an index exists")
	return cmd
}

func (a *app) runIndex(cmd *cobra.Command, exportDir string, force bool) error {
	out := cmd.OutOrStdout()

	location, err := a.location(exportDir)
	if err != nil {
		return err
	}

	if !force && search.Exists(location) {
		if m, err := search.ReadManifest(location); err == nil {
			fmt.Fprintf(out, "Already indexed: %d messages (built %s)\n", m.Records, m.BuiltAt.Local().Format(time.DateTime))
			warnChanged(out, *m)
			fmt.Fprintln(out, "Use --force to rebuild.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := indexer.NewBuilder(indexer.Options{
		Workers:       a.cfg.Index.Workers,
		ProgressEvery: a.cfg.Index.ProgressEvery,
		Metrics:       a.metrics,
	})

	fmt.Fprintf(out, "Indexing %s...\n", exportDir)
	task, err := builder.Start(ctx, exportDir, location)
	if err != nil {
		return err
	}

	for ev := range task.Events() {
		switch ev.Kind {
		case indexer.EventProgress:
			percent := 100.0
			if ev.Progress.Total > 0 {
				percent = float64(ev.Progress.Done) / float64(ev.Progress.Total) * 100
			}
			fmt.Fprintf(out, "\rIndexing: %d/%d (%.1f%%)  ", ev.Progress.Done, ev.Progress.Total, percent)
		case indexer.EventCanceled:
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Indexing canceled, the export is not indexed.")
		}
	}
	fmt.Fprintln(out)

	res, err := task.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("index %s: %w", exportDir, err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Index Complete ===")
	fmt.Fprintf(out, "Messages indexed: %d\n", res.Total)
	fmt.Fprintf(out, "Pages scanned:    %d\n", res.Pages)
	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "Pages skipped:    %d\n", len(res.Skipped))
		for _, s := range res.Skipped {
			fmt.Fprintf(out, "  %s: %v\n", s.Path, s.Err)
		}
	}
	fmt.Fprintf(out, "Duration:         %v\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Location:         %s\n", res.Location)
	return nil
}
