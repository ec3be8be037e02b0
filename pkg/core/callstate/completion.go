package callstate

import "sync"

// CompletionRegistry holds one-shot completion signals keyed by call id.
// The sequential dialer registers a signal after placing a call and blocks
// on it (with its own bound) until the engine signals the call's hangup.
type CompletionRegistry struct {
	mu      sync.Mutex
	signals map[string]chan struct{}
}

// NewCompletionRegistry creates an empty registry.
func NewCompletionRegistry() *CompletionRegistry {
	return &CompletionRegistry{
		signals: make(map[string]chan struct{}),
	}
}

// Register creates (or replaces) the one-shot signal for id and returns the
// channel to wait on. A replaced signal is closed so a stale waiter is
// released rather than leaked.
func (c *CompletionRegistry) Register(id string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.signals[id]; ok {
		close(old)
	}
	ch := make(chan struct{})
	c.signals[id] = ch
	return ch
}

// Signal fires and removes the signal for id. It is a no-op when no signal
// is registered, which tolerates calls outside sequential mode and waits
// that already timed out.
func (c *CompletionRegistry) Signal(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.signals[id]
	if !ok {
		return false
	}
	delete(c.signals, id)
	close(ch)
	return true
}

// Pending returns the number of registered signals.
func (c *CompletionRegistry) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signals)
}
