package export

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/renderinc/tgsift/internal/logging"
)

// PageError records a page that could not be read or parsed.
type PageError struct {
	Path string
	Err  error
}

func (e PageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// ScanResult holds the messages of a whole export, in page order.
type ScanResult struct {
	Messages []Message
	Pages    int
	Skipped  []PageError
}

// Scanner extracts indexable messages from every page of an export.
type Scanner struct {
	// Workers bounds concurrent page parsing. Zero means runtime.NumCPU().
	Workers int

	log *slog.Logger
}

// NewScanner creates a scanner parsing up to workers pages at once.
func NewScanner(workers int) *Scanner {
	return &Scanner{
		Workers: workers,
		log:     logging.ForComponent(logging.CompExport),
	}
}

// Scan validates dir and extracts its messages. A page that fails to parse
// is skipped and reported in ScanResult.Skipped; it never aborts the scan.
func (s *Scanner) Scan(ctx context.Context, dir string) (*ScanResult, error) {
	if err := Validate(dir); err != nil {
		return nil, err
	}
	pages, err := Pages(dir)
	if err != nil {
		return nil, err
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	perPage := make([][]Message, len(pages))
	pageErrs := make([]error, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := ReadPage(page.Path)
			if err != nil {
				pageErrs[i] = err
				return nil
			}
			msgs, err := Extract(doc.Selection, Indexable)
			if err != nil {
				pageErrs[i] = err
				return nil
			}
			perPage[i] = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ScanResult{Pages: len(pages)}
	for i, msgs := range perPage {
		if pageErrs[i] != nil {
			s.log.Warn("skipping page", "path", pages[i].Path, "error", pageErrs[i])
			result.Skipped = append(result.Skipped, PageError{Path: pages[i].Path, Err: pageErrs[i]})
			continue
		}
		result.Messages = append(result.Messages, msgs...)
	}

	s.log.Debug("scan complete", "dir", dir, "pages", len(pages), "messages", len(result.Messages), "skipped", len(result.Skipped))
	return result, nil
}
