// Package session implements the Peer Session state machine and the
// process-wide Session Registry (spec sections 3, 4.3, 4.5).
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamasenninn/ptt/internal/signaling"
)

// State is one state in the Peer Session lifecycle.
type State int

// States, in the order a session normally transitions through them.
const (
	StateNew State = iota
	StateHandshaking
	StateReady
	StateNegotiating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink is the control-channel write side a Session sends envelopes through.
// Implemented by internal/wsserver's per-connection writer.
type Sink interface {
	Send(signaling.Envelope) error
}

// PeerConn is the minimal peer-connection surface a Session drives. It is
// satisfied by internal/rtcpeer's façade; kept here as an interface so that
// session does not import rtcpeer (rtcpeer may need session's types for
// wiring in cmd/pttserver, not the reverse). ConnectionState and
// ICEConnectionState return pion's state strings (e.g. "connected",
// "checking") so the Monitor Snapshot can report them (spec section 3)
// without this package importing pion/webrtc itself.
type PeerConn interface {
	Close() error
	ConnectionState() string
	ICEConnectionState() string
}

// MediaSender is the per-session adapter a Session stops on teardown.
// Implemented by internal/capture's sender façade.
type MediaSender interface {
	Stop()
}

// NewClientID generates an 8-character opaque client identifier, unique over
// the lifetime of the process (spec section 3: "Client Identity").
func NewClientID() string {
	return uuid.New().String()[:8]
}

// Session is the per-client runtime object: signaling state, one
// server<->client peer connection, membership identity (spec section 3).
type Session struct {
	id          string
	displayName string
	isObserver  bool
	connectedAt time.Time

	sink Sink

	mu         sync.Mutex
	state      State
	peerConn   PeerConn
	mediaSend  MediaSender
	closeOnce  sync.Once
	onClosed   func(*Session)
	logger     *slog.Logger
}

// New creates a Session in state StateNew. onClosed, if non-nil, is invoked
// exactly once when the session finishes closing. wsserver's connHandler
// does the registry-removal and client_left broadcast itself around Close,
// so it passes nil here; onClosed exists for callers that want teardown
// side effects driven from inside Session.Close instead.
func New(id, displayName string, isObserver bool, sink Sink, onClosed func(*Session)) *Session {
	if displayName == "" {
		displayName = "Client-" + id
	}
	return &Session{
		id:          id,
		displayName: displayName,
		isObserver:  isObserver,
		connectedAt: time.Now(),
		sink:        sink,
		state:       StateNew,
		onClosed:    onClosed,
		logger:      slog.Default().With("component", "session", "clientId", id),
	}
}

// ClientID returns the session's client id. Satisfies signaling.Recipient.
func (s *Session) ClientID() string { return s.id }

// DisplayName returns the session's display name.
func (s *Session) DisplayName() string { return s.displayName }

// IsObserver reports whether this session is an observer (spec section 4.8).
func (s *Session) IsObserver() bool { return s.isObserver }

// ConnectedAt returns the monotonic connect timestamp.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// ConnectionState returns the live peer connection's state, or "" before
// negotiation has attached one (spec section 3: Monitor Snapshot "connection
// state").
func (s *Session) ConnectionState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerConn == nil {
		return ""
	}
	return s.peerConn.ConnectionState()
}

// ICEConnectionState returns the live peer connection's ICE state, or "" if
// none is attached yet (spec section 3: Monitor Snapshot "ice state").
func (s *Session) ICEConnectionState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerConn == nil {
		return ""
	}
	return s.peerConn.ICEConnectionState()
}

// Send forwards an envelope to the session's control-channel sink. Satisfies
// signaling.Recipient.
func (s *Session) Send(env signaling.Envelope) error {
	return s.sink.Send(env)
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to next, logging and ignoring illegal moves
// rather than panicking (spec SPEC_FULL.md section 4.3 implementation note).
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !legal(s.state, next) {
		s.logger.Warn("illegal session state transition", "from", s.state, "to", next)
		return false
	}
	s.state = next
	return true
}

func legal(from, to State) bool {
	switch from {
	case StateNew:
		return to == StateHandshaking
	case StateHandshaking:
		return to == StateReady || to == StateClosing
	case StateReady:
		return to == StateNegotiating || to == StateClosing
	case StateNegotiating:
		return to == StateActive || to == StateClosing
	case StateActive:
		return to == StateClosing
	case StateClosing:
		return to == StateClosed
	default:
		return false
	}
}

// MarkHandshaking transitions new -> handshaking.
func (s *Session) MarkHandshaking() bool { return s.transition(StateHandshaking) }

// MarkReady transitions handshaking -> ready: the session now appears in the
// Registry (spec section 4.3).
func (s *Session) MarkReady() bool { return s.transition(StateReady) }

// MarkNegotiating transitions ready -> negotiating: the client sent an offer.
func (s *Session) MarkNegotiating(peerConn PeerConn, mediaSend MediaSender) bool {
	s.mu.Lock()
	if !legal(s.state, StateNegotiating) {
		s.mu.Unlock()
		s.logger.Warn("illegal session state transition", "from", s.state, "to", StateNegotiating)
		return false
	}
	s.state = StateNegotiating
	s.peerConn = peerConn
	s.mediaSend = mediaSend
	s.mu.Unlock()
	return true
}

// MarkActive transitions negotiating -> active: local description set and
// answer sent.
func (s *Session) MarkActive() bool { return s.transition(StateActive) }

// BeginClosing transitions any state to closing. Safe to call multiple
// times; only the first call returns true, so callers can gate
// once-per-session side effects (releasing the floor, broadcasting
// client_left) on the return value.
func (s *Session) BeginClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return false
	}
	s.state = StateClosing
	return true
}

// Close tears the session down: stops its media sender, closes its peer
// connection, and invokes onClosed exactly once (spec section 5: "Session
// teardown... all must complete before the session is removed from the
// Registry"). Idempotent via sync.Once, tolerating the open question in
// SPEC_FULL.md section 9 about concurrent close ordering.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		mediaSend := s.mediaSend
		peerConn := s.peerConn
		s.mu.Unlock()

		if mediaSend != nil {
			mediaSend.Stop()
		}
		if peerConn != nil {
			if err := peerConn.Close(); err != nil {
				s.logger.Info("error closing peer connection", "err", err)
			}
		}
		if s.onClosed != nil {
			s.onClosed(s)
		}
	})
}

// String implements fmt.Stringer for log lines.
func (s *Session) String() string {
	return fmt.Sprintf("Session{id=%s, state=%s, observer=%v}", s.id, s.State(), s.isObserver)
}
