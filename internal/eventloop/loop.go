// Package eventloop provides the single cooperative thread on which the
// caption pipeline mutates its state.
//
// Closures posted to a [Loop] run one at a time, in posting order, on the
// goroutine that called [Loop.Run]. Work that blocks (network calls, audio
// playback) runs elsewhere and reports back by posting a continuation.
package eventloop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler is the subset of [Loop] used by pipeline components. Tests use
// the virtual-time implementation in the mock sub-package.
type Scheduler interface {
	// Post queues fn to run on the loop. It never blocks.
	Post(fn func())

	// AfterFunc posts fn once d has elapsed. The returned stop function
	// cancels the timer and reports whether it did so before fn was posted.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)

	// Now returns the scheduler's current time.
	Now() time.Time
}

var _ Scheduler = (*Loop)(nil)

// Loop is a single-goroutine executor with an unbounded FIFO of closures.
// All exported methods are safe for concurrent use.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	notify chan struct{}
	done   chan struct{}
}

// New returns a Loop. Closures may be posted before [Loop.Run] is called;
// they run once the loop starts.
func New() *Loop {
	return &Loop{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post queues fn. Posting from inside a running closure is allowed and
// never deadlocks. Closures posted after [Loop.Close] are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// AfterFunc posts fn to the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, func() { l.Post(fn) })
	return t.Stop
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time { return time.Now() }

// Run executes posted closures until ctx is cancelled or [Loop.Close] is
// called. It returns ctx.Err() on cancellation and nil after Close.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.notify:
		}
	}
}

// Close stops the loop. Pending closures are discarded. Close is idempotent.
func (l *Loop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.queue = nil
	close(l.done)
	return nil
}

// drain runs every closure queued at the time of the call plus any posted
// while draining.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 || l.closed {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventloop: task panicked", "panic", r)
		}
	}()
	fn()
}
