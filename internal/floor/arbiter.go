// Package floor implements the single-speaker floor arbiter (spec section 4.4).
package floor

import (
	"sync"
	"time"
)

// LocalCapture is the reserved owner id meaning the server's own capture
// source holds the floor.
const LocalCapture = "local-capture"

// State is an immutable snapshot of the floor.
type State struct {
	Owner   string // "" means idle
	Since   time.Time
	Elapsed time.Duration
}

// Idle reports whether the floor has no owner.
func (s State) Idle() bool { return s.Owner == "" }

// Arbiter enforces at-most-one-owner floor semantics with a hard timeout.
// All operations are serialized by a single mutex (spec section 5: "a mutex
// or a single serializing task").
type Arbiter struct {
	mu      sync.Mutex
	owner   string
	ownerNm string
	since   time.Time
	timeout time.Duration
}

// NewArbiter creates an idle Arbiter with the given max transmit time.
func NewArbiter(timeout time.Duration) *Arbiter {
	return &Arbiter{timeout: timeout}
}

// Request attempts to grant the floor to clientID. If idle, it grants and
// returns true. If already held, it returns false along with the current
// owner's id and display name.
func (a *Arbiter) Request(clientID, displayName string) (granted bool, ownerID, ownerName string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner != "" {
		return false, a.owner, a.ownerNm
	}
	a.owner = clientID
	a.ownerNm = displayName
	a.since = time.Now()
	return true, "", ""
}

// Release clears the floor if clientID currently owns it. Returns true if a
// release actually happened.
func (a *Arbiter) Release(clientID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner != clientID {
		return false
	}
	a.owner = ""
	a.ownerNm = ""
	return true
}

// Tick checks for a timeout breach. Call at 1Hz. Returns the revoked owner id
// and true if a revoke happened this tick.
func (a *Arbiter) Tick(now time.Time) (revokedOwner string, revoked bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner == "" {
		return "", false
	}
	if now.Sub(a.since) <= a.timeout {
		return "", false
	}
	revokedOwner = a.owner
	a.owner = ""
	a.ownerNm = ""
	return revokedOwner, true
}

// Snapshot returns an immutable copy of the current floor state.
func (a *Arbiter) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner == "" {
		return State{}
	}
	return State{Owner: a.owner, Since: a.since, Elapsed: time.Since(a.since)}
}

// OwnerName returns the current owner's display name, if any.
func (a *Arbiter) OwnerName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownerNm
}
