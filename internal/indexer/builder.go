// Package indexer builds the index of an export: one full scan, every
// record written, a single commit at the end.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/renderinc/tgsift/internal/export"
	"github.com/renderinc/tgsift/internal/logging"
	"github.com/renderinc/tgsift/internal/metrics"
	"github.com/renderinc/tgsift/internal/search"
	"github.com/renderinc/tgsift/internal/storage"
)

// DefaultProgressEvery is the record interval between progress reports
const DefaultProgressEvery = 100

// ErrBuildInProgress is returned when a location already has a build running
var ErrBuildInProgress = errors.New("build already in progress")

// Progress is the number of records written out of the total
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// ProgressFunc receives progress reports in order
type ProgressFunc func(Progress)

// Result describes a committed build
type Result struct {
	Location  string
	ExportDir string
	Total     int
	Pages     int
	Skipped   []export.PageError
	Duration  time.Duration
}

// Options configures a Builder
type Options struct {
	// Workers bounds concurrent page parsing. Zero means runtime.NumCPU().
	Workers int

	// ProgressEvery is the record interval between reports. Zero means
	// DefaultProgressEvery.
	ProgressEvery int

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Builder runs index builds and keeps at most one running per location
type Builder struct {
	scanner       *export.Scanner
	progressEvery int
	metrics       *metrics.Metrics
	log           *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewBuilder creates a builder with the given options
func NewBuilder(opts Options) *Builder {
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	return &Builder{
		scanner:       export.NewScanner(opts.Workers),
		progressEvery: every,
		metrics:       opts.Metrics,
		log:           logging.ForComponent(logging.CompIndex),
		active:        make(map[string]struct{}),
	}
}

func (b *Builder) acquire(location string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.active[location]; busy {
		return fmt.Errorf("%w: %s", ErrBuildInProgress, location)
	}
	b.active[location] = struct{}{}
	return nil
}

func (b *Builder) release(location string) {
	b.mu.Lock()
	delete(b.active, location)
	b.mu.Unlock()
}

// Building reports whether a build for location is running
func (b *Builder) Building(location string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, busy := b.active[location]
	return busy
}

// Build erases location and indexes exportDir into it, blocking until the
// commit or failure. progress may be nil. On cancellation the location is
// removed and ctx.Err() is returned.
func (b *Builder) Build(ctx context.Context, exportDir, location string, progress ProgressFunc) (*Result, error) {
	if err := export.Validate(exportDir); err != nil {
		return nil, err
	}
	if err := b.acquire(location); err != nil {
		return nil, err
	}
	defer b.release(location)
	return b.build(ctx, exportDir, location, progress)
}

func (b *Builder) build(ctx context.Context, exportDir, location string, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	if progress == nil {
		progress = func(Progress) {}
	}

	res, err := b.run(ctx, exportDir, location, progress)
	took := time.Since(start)

	switch {
	case err == nil:
		res.Duration = took
		b.metrics.ObserveBuild(metrics.OutcomeOK, res.Total, len(res.Skipped), took)
		b.log.Info("build complete", "export", exportDir, "location", location,
			"records", res.Total, "pages", res.Pages, "skipped", len(res.Skipped), "duration", took)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		b.metrics.ObserveBuild(metrics.OutcomeCanceled, 0, 0, took)
		b.log.Info("build canceled", "export", exportDir, "location", location)
	default:
		b.metrics.ObserveBuild(metrics.OutcomeError, 0, 0, took)
		b.log.Error("build failed", "export", exportDir, "location", location, "error", err)
	}
	return res, err
}

func (b *Builder) run(ctx context.Context, exportDir, location string, progress ProgressFunc) (*Result, error) {
	w, err := search.Create(ctx, location)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*Result, error) {
		if abortErr := w.Abort(); abortErr != nil {
			b.log.Warn("abort build", "location", location, "error", abortErr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	b.log.Info("scanning export", "export", exportDir)
	scan, err := b.scanner.Scan(ctx, exportDir)
	if err != nil {
		return fail(fmt.Errorf("scan export: %w", err))
	}

	total := len(scan.Messages)
	progress(Progress{Done: 0, Total: total})

	for i, msg := range scan.Messages {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		rec := &storage.Record{
			ID:        msg.ID,
			Sender:    msg.Sender,
			Content:   msg.Content,
			RawMarkup: msg.RawMarkup,
			Date:      msg.Date,
			DateLabel: msg.DateLabel,
			HasLink:   msg.HasLink,
			Seq:       i,
		}
		if err := w.Add(rec); err != nil {
			return fail(err)
		}
		if done := i + 1; done%b.progressEvery == 0 && done < total {
			progress(Progress{Done: done, Total: total})
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	skipped := make([]string, len(scan.Skipped))
	for i, s := range scan.Skipped {
		skipped[i] = s.Path
	}
	canonical, err := CanonicalPath(exportDir)
	if err != nil {
		canonical = exportDir
	}
	if err := w.Commit(search.Manifest{
		ExportDir: canonical,
		Pages:     scan.Pages,
		Skipped:   skipped,
	}); err != nil {
		return nil, fmt.Errorf("commit index: %w", err)
	}

	m, err := search.ReadManifest(location)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	progress(Progress{Done: total, Total: total})
	return &Result{
		Location:  location,
		ExportDir: canonical,
		Total:     m.Records,
		Pages:     scan.Pages,
		Skipped:   scan.Skipped,
	}, nil
}
