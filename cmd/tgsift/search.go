package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/spf13/cobra"

	"github.com/renderinc/tgsift/internal/query"
	"github.com/renderinc/tgsift/internal/search"
)

type searchFlags struct {
	from  string
	to    string
	limit int
	json  bool
}

func newSearchCmd(a *app) *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search <export-dir> <query...>",
		Short: "Search an indexed export",
		Long: `Searches sender and content of every message. Besides free text the query
accepts from:<name> (repeatable) and has:link. Free text supports "phrases",
+required and -excluded terms. --from and --to restrict to an inclusive
YYYY.MM.DD date range. At most 500 hits are shown; the total is exact.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, args[0], strings.Join(args[1:], " "), f)
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "earliest date, YYYY.MM.DD")
	cmd.Flags().StringVar(&f.to, "to", "", "latest date, YYYY.MM.DD")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "maximum hits to show (at most 500)")
	cmd.Flags().BoolVar(&f.json, "json", false, "output results as JSON")
	return cmd
}

func (f searchFlags) dateRange() (*query.DateRange, error) {
	if f.from == "" && f.to == "" {
		return nil, nil
	}
	if f.from == "" || f.to == "" {
		return nil, fmt.Errorf("%w: both --from and --to are required", query.ErrInvalidDateRange)
	}
	return &query.DateRange{From: f.from, To: f.to}, nil
}

func (a *app) runSearch(cmd *cobra.Command, exportDir, input string, f searchFlags) error {
	out := cmd.OutOrStdout()

	dates, err := f.dateRange()
	if err != nil {
		return err
	}

	idx, err := a.openIndex(exportDir)
	if err != nil {
		return err
	}
	defer idx.Close()

	compiler, err := a.compiler()
	if err != nil {
		return err
	}

	opts := a.searchOptions()
	if f.limit > 0 {
		opts.Limit = f.limit
	}

	res, err := idx.SearchString(cmd.Context(), compiler, input, dates, opts)
	if errors.Is(err, query.ErrEmptyQuery) {
		fmt.Fprintln(out, "Enter a search term, a from:/has:link directive, or a date range.")
		return nil
	}
	if err != nil {
		return err
	}

	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if len(res.Hits) == 0 {
		fmt.Fprintln(out, "No results found")
		return nil
	}

	fmt.Fprintf(out, "Found %d results, showing %d:\n\n", res.Total, len(res.Hits))
	for i, hit := range res.Hits {
		fmt.Fprintf(out, "%d. %s · %s  [%s]\n", i+1, hit.Sender, hit.DateLabel, hit.ID)
		fmt.Fprintf(out, "   %s\n", plainSnippet(hit))
		fmt.Fprintln(out)
	}
	return nil
}

var markReplacer = strings.NewReplacer("<mark>", "[", "</mark>", "]")

// plainSnippet turns the HTML snippet into terminal text, matches in brackets
func plainSnippet(hit search.Hit) string {
	return html.UnescapeString(markReplacer.Replace(hit.Snippet))
}
