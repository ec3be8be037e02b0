// Package amd provides the per-call fallback timers that force a
// human-transfer decision when the provider's machine-detection event
// never arrives.
package amd

import (
	"sync"
	"time"
)

// Timers is a table of pending fallback timers keyed by call id. A claimed
// flag per entry guarantees that for each armed timer exactly one of
// {fire, cancel} takes effect, even when Cancel races the timer firing.
type Timers struct {
	mu      sync.Mutex
	pending map[string]*entry
}

type entry struct {
	timer   *time.Timer
	claimed bool
}

// NewTimers creates an empty timer table.
func NewTimers() *Timers {
	return &Timers{
		pending: make(map[string]*entry),
	}
}

// Arm schedules fire(id) to run after d unless Cancel claims the entry
// first. Re-arming an id cancels the previous timer.
func (t *Timers) Arm(id string, d time.Duration, fire func(id string)) {
	if id == "" || fire == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.pending[id]; ok && !old.claimed {
		old.claimed = true
		old.timer.Stop()
	}
	e := &entry{}
	e.timer = time.AfterFunc(d, func() {
		if t.claim(id, e) {
			fire(id)
		}
	})
	t.pending[id] = e
}

// claim marks e as fired if it is still the live entry for id. It returns
// false when Cancel (or a re-arm) got there first.
func (t *Timers) claim(id string, e *entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.pending[id]
	if !ok || cur != e || e.claimed {
		return false
	}
	e.claimed = true
	delete(t.pending, id)
	return true
}

// Cancel stops the pending timer for id. It returns true when a timer was
// claimed before firing; false means there was nothing pending or the
// timer already fired.
func (t *Timers) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[id]
	if !ok || e.claimed {
		return false
	}
	e.claimed = true
	e.timer.Stop()
	delete(t.pending, id)
	return true
}

// Pending returns the number of armed timers.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// CancelAll claims every pending timer. Used on shutdown.
func (t *Timers) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.pending {
		if !e.claimed {
			e.claimed = true
			e.timer.Stop()
		}
		delete(t.pending, id)
	}
}
