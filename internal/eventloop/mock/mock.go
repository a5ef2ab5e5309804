// Package mock provides a deterministic, virtual-time [eventloop.Scheduler]
// for tests.
//
// Posted closures and due timers run only when the test calls [Loop.Flush]
// or [Loop.Advance], on the test goroutine. This makes debounce and cooldown
// logic testable without sleeping.
package mock

import (
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/lingualink/internal/eventloop"
)

var _ eventloop.Scheduler = (*Loop)(nil)

type timer struct {
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
}

// Loop is a virtual-time scheduler. The zero value is not usable; call [New].
// Post and AfterFunc are safe to call from other goroutines so that
// continuations of real asynchronous work can be delivered back.
type Loop struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	queue  []func()
	timers []*timer
}

// New returns a Loop whose clock starts at start.
func New(start time.Time) *Loop {
	return &Loop{now: start}
}

// Post queues fn.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
}

// AfterFunc schedules fn at Now()+d in virtual time.
func (l *Loop) AfterFunc(d time.Duration, fn func()) func() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	t := &timer{at: l.now.Add(d), seq: l.seq, fn: fn}
	l.timers = append(l.timers, t)
	return func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Now returns the virtual time.
func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Flush runs queued closures, including ones posted while flushing, until
// the queue is empty.
func (l *Loop) Flush() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and flushing after each one.
func (l *Loop) Advance(d time.Duration) {
	l.Flush()
	l.mu.Lock()
	target := l.now.Add(d)
	l.mu.Unlock()

	for {
		l.mu.Lock()
		t := l.nextDueLocked(target)
		if t == nil {
			l.now = target
			l.mu.Unlock()
			l.Flush()
			return
		}
		t.stopped = true
		if t.at.After(l.now) {
			l.now = t.at
		}
		l.mu.Unlock()

		t.fn()
		l.Flush()
	}
}

// Pending returns the number of queued closures and live timers.
func (l *Loop) Pending() (queued, timers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.timers {
		if !t.stopped {
			timers++
		}
	}
	return len(l.queue), timers
}

func (l *Loop) nextDueLocked(target time.Time) *timer {
	live := l.timers[:0]
	for _, t := range l.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	l.timers = live
	sort.Slice(l.timers, func(i, j int) bool {
		if l.timers[i].at.Equal(l.timers[j].at) {
			return l.timers[i].seq < l.timers[j].seq
		}
		return l.timers[i].at.Before(l.timers[j].at)
	})
	if len(l.timers) == 0 || l.timers[0].at.After(target) {
		return nil
	}
	return l.timers[0]
}
