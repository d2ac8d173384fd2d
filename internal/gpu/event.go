package gpu

import (
	"context"
	"fmt"
)

// Event is the completion token of one piece of submitted device work. An
// event only ever depends on events that existed when it was created, so the
// dependency graph cannot contain cycles.
type Event struct {
	id   uint64
	name string
	deps []*Event
	done chan struct{}
	err  error
}

func newEvent(id uint64, name string, deps []*Event) *Event {
	return &Event{
		id:   id,
		name: name,
		deps: deps,
		done: make(chan struct{}),
	}
}

// ID is unique per queue.
func (e *Event) ID() uint64 { return e.id }

// Name describes the work the event tracks.
func (e *Event) Name() string { return e.name }

// Dependencies returns the events this one was declared to wait for.
func (e *Event) Dependencies() []*Event {
	deps := make([]*Event, len(e.deps))
	copy(deps, e.deps)
	return deps
}

// Done is closed once the work has finished, successfully or not.
func (e *Event) Done() <-chan struct{} { return e.done }

// Satisfied reports whether the work has finished.
func (e *Event) Satisfied() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Err returns the failure of the work once it is satisfied, nil before.
func (e *Event) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// Wait blocks until the event is satisfied or ctx is done. Cancelling ctx
// abandons the wait only; the device work still runs to completion.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", e.name, ctx.Err())
	}
}

func (e *Event) String() string {
	return fmt.Sprintf("%s#%d", e.name, e.id)
}

// WaitAll waits for every event and returns the first failure in argument
// order.
func WaitAll(ctx context.Context, events ...*Event) error {
	var first error
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := ev.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
