package gpu

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// command is one unit of device work waiting on its dependencies.
type command struct {
	name string
	// deps are the dependencies the event reports.
	deps []*Event
	// after are further events the command waits for without reporting
	// them as dependencies.
	after []*Event
	run   func() error
	// cleanup runs after the event is satisfied whether or not run executed.
	cleanup func()
}

// Queue is an out-of-order command queue. Commands start as soon as all of
// their dependencies are satisfied; submission order alone implies nothing.
type Queue struct {
	logger *zap.Logger
	nextID atomic.Uint64

	mu sync.Mutex
	// outstanding maps every unretired event to a channel closed once its
	// cleanup has run.
	outstanding map[*Event]chan struct{}
}

func newQueue(logger *zap.Logger) *Queue {
	return &Queue{
		logger:      logger.Named("queue"),
		outstanding: make(map[*Event]chan struct{}),
	}
}

// enqueue creates the event for cmd and starts tracking it. It never blocks.
func (q *Queue) enqueue(cmd command) *Event {
	ev := newEvent(q.nextID.Add(1), cmd.name, cmd.deps)
	retired := make(chan struct{})
	q.mu.Lock()
	q.outstanding[ev] = retired
	q.mu.Unlock()
	go q.execute(ev, cmd, retired)
	return ev
}

func (q *Queue) execute(ev *Event, cmd command, retired chan struct{}) {
	defer func() {
		q.mu.Lock()
		delete(q.outstanding, ev)
		q.mu.Unlock()
		close(retired)
	}()

	var err error
	for _, dep := range slices.Concat(cmd.deps, cmd.after) {
		<-dep.done
		if dep.err != nil && err == nil {
			err = newError(ErrExecution, cmd.name, dep.err, "dependency %s failed", dep)
		}
	}
	if err == nil && cmd.run != nil {
		err = runRecovered(cmd.name, cmd.run)
		if err != nil && Category(err) == "internal" {
			err = newError(ErrExecution, cmd.name, err, "device work failed")
		}
	}
	if err != nil {
		q.logger.Debug("command failed", zap.Stringer("event", ev), zap.Error(err))
	}

	ev.err = err
	close(ev.done)

	if cmd.cleanup != nil {
		cmd.cleanup()
	}
}

// finish blocks until every command enqueued before the call has completed
// and run its cleanup. Commands enqueued meanwhile are not waited for.
func (q *Queue) finish(ctx context.Context) error {
	q.mu.Lock()
	pending := make([]chan struct{}, 0, len(q.outstanding))
	for _, retired := range q.outstanding {
		pending = append(pending, retired)
	}
	q.mu.Unlock()

	for _, retired := range pending {
		select {
		case <-retired:
		case <-ctx.Done():
			return fmt.Errorf("waiting for queue: %w", ctx.Err())
		}
	}
	return nil
}

// outstandingCount returns the number of commands not yet retired.
func (q *Queue) outstandingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.outstanding)
}

// runRecovered turns a panicking device program into an execution error.
func runRecovered(name string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if recErr, ok := rec.(error); ok {
				err = newError(ErrExecution, name, recErr, "device program panicked")
				return
			}
			err = newError(ErrExecution, name, nil, "device program panicked: %v", rec)
		}
	}()
	return fn()
}
