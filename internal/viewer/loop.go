package viewer

import (
	"context"
	"errors"

	"phase-viewer/internal/export"
)

// ErrLoopStopped is returned when posting to a loop that is no longer running
var ErrLoopStopped = errors.New("event loop stopped")

// Event is a UI event handled on the loop
type Event interface {
	event()
}

// DateSelected is the selector's onChange
type DateSelected struct {
	Value string
}

// ExportClicked is the export button's onClick
type ExportClicked struct{}

// ExportFinished reports the outcome of an accepted export job
type ExportFinished struct {
	JobID   string
	Name    string
	Outputs []string
	Err     string
}

func (DateSelected) event()   {}
func (ExportClicked) event()  {}
func (ExportFinished) event() {}

// Result is what a handler returns to the poster
type Result struct {
	Acceptance export.Acceptance
	Err        error
}

// Handler handles one event. Handlers never overlap.
type Handler func(ctx context.Context, ev Event) Result

type envelope struct {
	ctx   context.Context
	event Event
	reply chan Result
}

// Loop runs handlers one at a time in posting order
type Loop struct {
	handler Handler
	events  chan envelope
	done    chan struct{}
}

// NewLoop creates a loop; call Run to start it
func NewLoop(handler Handler) *Loop {
	return &Loop{
		handler: handler,
		events:  make(chan envelope),
		done:    make(chan struct{}),
	}
}

// Run processes events until ctx is done
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-l.events:
			env.reply <- l.handler(env.ctx, env.event)
		}
	}
}

// abandon marks a loop that will never run as stopped
func (l *Loop) abandon() {
	close(l.done)
}

// Done is closed once Run returns
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post hands ev to the loop and waits for its result. The handler runs with
// ctx.
func (l *Loop) Post(ctx context.Context, ev Event) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case l.events <- envelope{ctx: ctx, event: ev, reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-l.done:
		return Result{}, ErrLoopStopped
	}

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
