package kv

import (
	"context"
	"sync"
	"time"
)

// wakeTarget describes when the background scheduler should next wake up
// to consider a commit.
type wakeTargetKind int

const (
	// wakeNever means no commit is currently pending; the scheduler sleeps
	// until a new target is published.
	wakeNever wakeTargetKind = iota
	// wakeAt means the scheduler should wake at the given time.
	wakeAt
	// wakeNow means the scheduler should wake immediately.
	wakeNow
)

type wakeTarget struct {
	kind wakeTargetKind
	at   time.Time
}

// targetWatch is a single-slot broadcast of the current wakeTarget. It
// plays the role Rust's tokio::sync::watch plays in the original design:
// a background goroutine can block waiting for the target to change, with
// a bound on how long it waits, which sync.Cond cannot express without an
// auxiliary timer goroutine. We get the same effect more simply by pairing
// the value with a "done" channel that is closed and replaced every time
// the value changes; watchers select on the channel alongside a timer.
type targetWatch struct {
	mu      sync.Mutex
	target  wakeTarget
	changed chan struct{}
}

func newTargetWatch(initial wakeTarget) *targetWatch {
	return &targetWatch{
		target:  initial,
		changed: make(chan struct{}),
	}
}

// publish sets a new target and wakes any current watchers.
func (w *targetWatch) publish(t wakeTarget) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.target = t
	close(w.changed)
	w.changed = make(chan struct{})
}

// snapshot returns the current target.
func (w *targetWatch) snapshot() wakeTarget {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// wait blocks until either the target changes, the target's own deadline
// (if wakeAt) arrives, or ctx is done. It returns the target observed at
// wake time.
func (w *targetWatch) wait(ctx context.Context) wakeTarget {
	w.mu.Lock()
	t := w.target
	ch := w.changed
	w.mu.Unlock()

	switch t.kind {
	case wakeNever:
		select {
		case <-ch:
		case <-ctx.Done():
		}
	case wakeNow:
		// No wait at all.
	case wakeAt:
		d := time.Until(t.at)
		if d <= 0 {
			break
		}
		// Timers longer than this are re-armed in a loop by the caller;
		// capping here keeps a single time.Timer allocation bounded and
		// avoids any platform issues with very large durations.
		const maxWait = 24 * time.Hour
		if d > maxWait {
			d = maxWait
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ch:
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// timeWatch is a single-slot broadcast of a timestamp, used for
// last_persistence: tests and external observers wait on it to learn when
// the most recent persistence transaction completed.
type timeWatch struct {
	mu      sync.Mutex
	value   time.Time
	changed chan struct{}
}

func newTimeWatch(initial time.Time) *timeWatch {
	return &timeWatch{value: initial, changed: make(chan struct{})}
}

func (w *timeWatch) publish(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.value = t
	close(w.changed)
	w.changed = make(chan struct{})
}

func (w *timeWatch) snapshot() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// wait blocks until the value changes or ctx is done, returning the value
// observed at wake time.
func (w *timeWatch) wait(ctx context.Context) time.Time {
	w.mu.Lock()
	ch := w.changed
	w.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}
