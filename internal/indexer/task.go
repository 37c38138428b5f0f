package indexer

import (
	"context"
	"errors"
	"sync"

	"github.com/renderinc/tgsift/internal/export"
)

// EventKind distinguishes progress from the terminal event of a task
type EventKind int

const (
	EventProgress EventKind = iota
	EventDone
	EventCanceled
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventDone:
		return "done"
	case EventCanceled:
		return "canceled"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether k ends the event stream
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// Event is one entry of a task's event stream
type Event struct {
	Kind     EventKind
	Progress Progress
	Result   *Result // EventDone only
	Err      error   // EventCanceled and EventFailed only
}

const eventBuffer = 64

// Task is a build running in the background. Its event stream carries
// progress reports in order followed by exactly one terminal event, then
// closes. Progress reports are dropped rather than stalling the build when
// the consumer falls behind; the terminal event is never dropped.
type Task struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	once   sync.Once
	result *Result
	err    error
}

// Start launches a build of exportDir into location and returns at once.
// An invalid export, or a location that already has a build
// (ErrBuildInProgress), fails before anything starts.
func (b *Builder) Start(ctx context.Context, exportDir, location string) (*Task, error) {
	if err := export.Validate(exportDir); err != nil {
		return nil, err
	}
	if err := b.acquire(location); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		events: make(chan Event, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer cancel()
		res, err := b.build(ctx, exportDir, location, t.progress)
		b.release(location)
		t.finish(res, err)
	}()

	return t, nil
}

// Events returns the task's event stream
func (t *Task) Events() <-chan Event {
	return t.events
}

// Cancel asks the build to stop. The location is left not built.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the terminal event has been queued
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the build ends and returns its outcome
func (t *Task) Wait() (*Result, error) {
	<-t.done
	return t.result, t.err
}

// progress queues a report unless that would take the slot kept for the
// terminal event. Only the build goroutine sends, so len is stable enough.
func (t *Task) progress(p Progress) {
	if len(t.events) >= cap(t.events)-1 {
		return
	}
	t.events <- Event{Kind: EventProgress, Progress: p}
}

func (t *Task) finish(res *Result, err error) {
	t.once.Do(func() {
		t.result, t.err = res, err

		ev := Event{Kind: EventDone, Result: res}
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			ev = Event{Kind: EventCanceled, Err: err}
		default:
			ev = Event{Kind: EventFailed, Err: err}
		}
		if res != nil {
			ev.Progress = Progress{Done: res.Total, Total: res.Total}
		}

		t.events <- ev
		close(t.events)
		close(t.done)
	})
}
