package session

import (
	"sync"
	"time"

	"github.com/gamasenninn/ptt/internal/signaling"
)

// Member is a point-in-time, read-only view of a registered session, used
// for broadcasts and monitor snapshots so callers never hold a live pointer
// into the Registry across their own I/O (spec section 3: "Cross-references
// are by client id... never by direct session pointers").
type Member struct {
	ClientID           string
	DisplayName        string
	IsObserver         bool
	ConnectedAt        time.Time
	ConnectionState    string
	ICEConnectionState string
}

// Registry is the authoritative, process-wide set of Peer Sessions, keyed by
// client id (spec section 4.5). All operations are serialized by a single
// mutex, matching the teacher's server/room.go Room and the "three critical
// sections" ordering rule in spec section 5.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert adds a session to the registry, keyed by its client id.
func (r *Registry) Insert(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ClientID()] = s
}

// Remove deletes a session from the registry by client id.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

// Get looks up a session by client id. Satisfies signaling.Directory.
func (r *Registry) Get(clientID string) (signaling.Recipient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[clientID]
	if !ok {
		return nil, false
	}
	return s, true
}

// GetSession looks up a session by client id, returning the concrete type
// rather than a signaling.Recipient, for callers that need state-machine or
// observer-flag access.
func (r *Registry) GetSession(clientID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[clientID]
	return s, ok
}

// Members returns a point-in-time snapshot of registered sessions.
// includeObservers controls whether observer sessions are included; ordinary
// broadcasts pass false, monitor snapshot assembly passes true (spec
// sections 4.5, 4.8).
func (r *Registry) Members(includeObservers bool) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.IsObserver() && !includeObservers {
			continue
		}
		members = append(members, Member{
			ClientID:           s.ClientID(),
			DisplayName:        s.DisplayName(),
			IsObserver:         s.IsObserver(),
			ConnectedAt:        s.ConnectedAt(),
			ConnectionState:    s.ConnectionState(),
			ICEConnectionState: s.ICEConnectionState(),
		})
	}
	return members
}

// Sessions returns a point-in-time snapshot of the registered Session
// pointers themselves (not just their Member view), for the Broadcast
// Dispatcher which needs to call Send on each one. includeObservers mirrors
// Members.
func (r *Registry) Sessions(includeObservers bool) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.IsObserver() && !includeObservers {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Count returns the number of non-observer and observer members, in that
// order, for monitor snapshot coarse counters (spec section 3).
func (r *Registry) Count() (members, observers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.IsObserver() {
			observers++
		} else {
			members++
		}
	}
	return members, observers
}
