// Package inflight counts background work that a caller later drains.
//
// A Tracker differs from sync.WaitGroup in two ways: Add may race with Wait,
// and once closed it refuses new work so a drain can finish.
package inflight

import (
	"context"
	"sync"
)

// Tracker counts running background tasks. The zero value is open and idle.
type Tracker struct {
	mu     sync.Mutex
	n      int
	idle   chan struct{}
	closed bool
}

// Add registers one task. It returns false, registering nothing, once the
// tracker is closed.
func (t *Tracker) Add() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	return true
}

// Done marks one task finished
func (t *Tracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.n == 0 {
		panic("inflight: Done without Add")
	}
	t.n--
	if t.n == 0 {
		close(t.idle)
		t.idle = nil
	}
}

// Wait blocks until no task is running or ctx ends. Tasks added while
// waiting extend the wait.
func (t *Tracker) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		idle := t.idle
		t.mu.Unlock()
		if idle == nil {
			return nil
		}

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close refuses further Add calls. Running tasks are unaffected.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Open accepts Add calls again
func (t *Tracker) Open() {
	t.mu.Lock()
	t.closed = false
	t.mu.Unlock()
}

// Closed reports whether Add is refused
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Len returns the number of running tasks
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}
