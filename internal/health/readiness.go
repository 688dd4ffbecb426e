// Package health supervises the backing stores and owns the
// process-wide readiness state.
//
// Readiness is asymmetric: the supervisor only ever moves it to
// degraded. Healthy is the initial state; a successful probe does not
// restore it, and recovery of an individual adapter happens through
// its own Reconnect flipping the adapter's health flag. This one-way
// policy is deliberate and matches the behavior external monitors
// already depend on.
package health

import (
	"sync"
	"time"
)

// State is a snapshot of the process-wide readiness signal.
type State struct {
	Healthy bool
	Reason  string
	Since   time.Time
}

// Readiness holds the process-wide readiness state. It starts healthy
// and is degraded by the supervisor loops; all mutation goes through
// Degrade so there are no ad-hoc flag writes scattered across call
// sites.
type Readiness struct {
	mu    sync.RWMutex
	state State
}

// NewReadiness returns a readiness signal in the healthy state.
func NewReadiness() *Readiness {
	return &Readiness{state: State{Healthy: true}}
}

// Degrade marks the process not ready. The first degradation records
// the reason and time; later calls keep the original ones.
func (r *Readiness) Degrade(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.Healthy {
		return
	}
	r.state = State{Healthy: false, Reason: reason, Since: time.Now().UTC()}
}

// IsHealthy reports whether the process is ready.
func (r *Readiness) IsHealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Healthy
}

// Snapshot returns the current readiness state.
func (r *Readiness) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}
