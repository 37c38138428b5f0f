package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/renderinc/tgsift/internal/export"
	"github.com/renderinc/tgsift/internal/metrics"
	"github.com/renderinc/tgsift/internal/preview"
)

func newContextCmd(a *app) *cobra.Command {
	var (
		htmlOut string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "context <export-dir> <message-id>",
		Short: "Show the messages around one message",
		Long: `Re-reads the export pages and shows up to 10 messages before and after the
given message, service notices included. --html writes a standalone page
that renders with the export's own stylesheet and images.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runContext(cmd, args[0], args[1], htmlOut, asJSON)
		},
	}
	cmd.Flags().StringVar(&htmlOut, "html", "", "write the context page to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the window as JSON")
	return cmd
}

func (a *app) runContext(cmd *cobra.Command, exportDir, id, htmlOut string, asJSON bool) error {
	out := cmd.OutOrStdout()

	win, err := preview.New().Build(cmd.Context(), exportDir, id)
	if err != nil {
		a.metrics.ObserveContext(metricsOutcome(err))
		return err
	}
	a.metrics.ObserveContext(metrics.OutcomeOK)

	if htmlOut != "" {
		doc, err := win.Document(preview.FileBase(exportDir))
		if err != nil {
			return err
		}
		if err := os.WriteFile(htmlOut, []byte(doc), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", htmlOut, err)
		}
		fmt.Fprintf(out, "Wrote %s%s\n", htmlOut, win.Anchor())
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(win)
	}

	fmt.Fprintf(out, "%s\n\n", win.Page)
	for _, e := range win.Entries {
		marker := "  "
		if e.Target {
			marker = "> "
		}
		fmt.Fprintf(out, "%s%s\n", marker, entryLine(e))
	}
	return nil
}

// entryLine renders an entry as "sender: text", or the notice text for
// service messages
func entryLine(e preview.Entry) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(e.Markup))
	if err != nil {
		return e.ID
	}
	sel := doc.Find(export.Contextual.Selector()).First()
	if e.Service {
		return "-- " + strings.Join(strings.Fields(sel.Text()), " ") + " --"
	}
	msg, err := export.MessageFrom(sel)
	if err != nil {
		return e.ID
	}
	return fmt.Sprintf("%s: %s", msg.Sender, msg.Content)
}

func newLocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locate <export-dir> <message-id>",
		Short: "Print the page file holding a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := preview.Locate(cmd.Context(), args[0], args[1])
			if err != nil {
				a.metrics.ObserveContext(metricsOutcome(err))
				return err
			}
			a.metrics.ObserveContext(metrics.OutcomeOK)
			fmt.Fprintln(cmd.OutOrStdout(), src.Path)
			fmt.Fprintln(cmd.OutOrStdout(), src.URL())
			return nil
		},
	}
}
