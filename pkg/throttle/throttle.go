// Package throttle provides a leading-edge throttle that coalesces calls made
// inside the window and delivers the latest one when the window closes.
package throttle

import (
	"sync"
	"time"
)

type Throttle[T any] struct {
	interval time.Duration
	fn       func(T)
	now      func() time.Time

	mu         sync.Mutex
	last       time.Time
	fired      bool
	pending    T
	hasPending bool
	timer      *time.Timer
	stopped    bool
}

// New returns a throttle calling fn at most once per interval. The first call
// after a quiet period runs immediately; later calls inside the window replace
// each other and the last one runs when the window ends.
func New[T any](interval time.Duration, fn func(T)) *Throttle[T] {
	return &Throttle[T]{interval: interval, fn: fn, now: time.Now}
}

func (t *Throttle[T]) Call(v T) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	now := t.now()
	if t.timer == nil && (!t.fired || now.Sub(t.last) >= t.interval) {
		t.last = now
		t.fired = true
		t.mu.Unlock()
		t.fn(v)
		return
	}

	t.pending = v
	t.hasPending = true
	if t.timer == nil {
		wait := t.interval - now.Sub(t.last)
		if wait < 0 {
			wait = 0
		}
		t.timer = time.AfterFunc(wait, t.trailing)
	}
	t.mu.Unlock()
}

func (t *Throttle[T]) trailing() {
	t.mu.Lock()
	t.timer = nil
	if t.stopped || !t.hasPending {
		t.mu.Unlock()
		return
	}
	v := t.pending
	var zero T
	t.pending = zero
	t.hasPending = false
	t.last = t.now()
	t.fired = true
	t.mu.Unlock()

	t.fn(v)
}

// Flush delivers a pending value right away.
func (t *Throttle[T]) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.stopped || !t.hasPending {
		t.mu.Unlock()
		return
	}
	v := t.pending
	var zero T
	t.pending = zero
	t.hasPending = false
	t.last = t.now()
	t.mu.Unlock()

	t.fn(v)
}

// Stop drops any pending value and ignores later calls.
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.hasPending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
