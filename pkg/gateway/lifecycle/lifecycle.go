// Package lifecycle tracks process shutdown state for readiness checks.
package lifecycle

import "sync/atomic"

// Lifecycle flips the service into draining mode during graceful
// shutdown so /readyz starts failing while in-flight work finishes.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(v bool) {
	if l != nil {
		l.draining.Store(v)
	}
}

func (l *Lifecycle) IsDraining() bool {
	return l != nil && l.draining.Load()
}
