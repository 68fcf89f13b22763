// Package loop runs a client session's work on a single goroutine.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("loop closed")

// Loop is a FIFO of callbacks executed one at a time by Run. Post never
// blocks, so callbacks may post more work.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake  chan struct{}
	done  chan struct{}
	clock Clock
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock used by AfterFunc.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// New creates an idle loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		clock: wallClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes posted callbacks until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if l.RunPending() > 0 {
			continue
		}
		select {
		case <-l.wake:
		case <-l.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunPending runs queued callbacks, including ones they post, until the
// queue is empty, and returns how many ran. Callers own the loop while it
// runs; it must not race with Run.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		fn, ok := l.next()
		if !ok {
			return ran
		}
		fn()
		ran++
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Close discards queued work and stops Run.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

// Exec posts fn and waits for it to finish.
func (l *Loop) Exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timer is a pending AfterFunc callback.
type Timer struct {
	mu      sync.Mutex
	stopper Stopper
	stopped bool
	fired   bool
}

// Stop cancels the callback. It reports whether the callback was prevented
// from running.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	if t.stopper != nil {
		t.stopper.Stop()
	}
	return true
}

func (t *Timer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	return true
}

// AfterFunc runs fn on the loop once d has elapsed, unless the returned
// timer is stopped first. A Stop made on the loop before fn runs always wins.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	stopper := l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.fire() {
				fn()
			}
		})
	})
	t.mu.Lock()
	t.stopper = stopper
	t.mu.Unlock()
	return t
}
