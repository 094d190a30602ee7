package node

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate serializes expensive volume transfers so a single process cannot
// overwhelm the remote store.  At most one throttled transfer is in flight
// per gate; non-throttled requests bypass it entirely.
//
// A process-wide gate is shared by every Service by default so separate
// Service instances in the same process still contend.  Tests and special
// deployments can construct private gates and inject them with WithGate.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate returns a gate admitting one transfer at a time.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate admits the caller.
func (g *Gate) Acquire() {
	// Acquire only errors on context cancellation and the background
	// context is never canceled.
	_ = g.sem.Acquire(context.Background(), 1)
}

// Release frees the gate.  It must be called exactly once per Acquire, on
// every exit path including transport errors.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// processGate is the default gate shared by all services in this process.
var processGate = NewGate()
