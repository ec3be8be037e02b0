// Package gate implements the transfer gate: a barrier that suspends
// dialing while at least one live transfer is active.
package gate

import (
	"context"
	"sync"
)

// Gate tracks the set of call ids with an active transfer. The gate is
// open exactly when the pinned set is empty; openness is exposed as a
// channel that closes on open, so waiters can select against it.
type Gate struct {
	mu     sync.Mutex
	pinned map[string]struct{}
	open   chan struct{}
}

// New returns an open gate.
func New() *Gate {
	g := &Gate{
		pinned: make(map[string]struct{}),
		open:   make(chan struct{}),
	}
	close(g.open)
	return g
}

// Pin adds id to the pinned set, closing the gate if it was open.
func (g *Gate) Pin(id string) {
	if id == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pinned[id]; ok {
		return
	}
	if len(g.pinned) == 0 {
		g.open = make(chan struct{})
	}
	g.pinned[id] = struct{}{}
}

// Unpin removes id, reopening the gate once the pinned set is empty.
// Unknown ids are ignored.
func (g *Gate) Unpin(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pinned[id]; !ok {
		return
	}
	delete(g.pinned, id)
	if len(g.pinned) == 0 {
		close(g.open)
	}
}

// IsClosed reports whether any transfer is pinning the gate shut.
func (g *Gate) IsClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pinned) > 0
}

// IsPinned reports whether id currently pins the gate.
func (g *Gate) IsPinned(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pinned[id]
	return ok
}

// Pinned returns the pinned call ids.
func (g *Gate) Pinned() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.pinned))
	for id := range g.pinned {
		out = append(out, id)
	}
	return out
}

// Opened returns a channel that is closed while the gate is open. Grab a
// fresh channel before each wait; a previously returned channel stays
// closed even if the gate closes again afterwards.
func (g *Gate) Opened() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.Opened():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceOpen clears every pin and opens the gate. Used by Stop so a dial
// loop blocked on the gate is not stranded.
func (g *Gate) ForceOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pinned) == 0 {
		return
	}
	g.pinned = make(map[string]struct{})
	close(g.open)
}
