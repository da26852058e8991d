package vtclient

import (
	"log/slog"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/gamasenninn/ptt/internal/signaling"
)

func newTestClient(t *testing.T, clientID string) *Client {
	t.Helper()
	return &Client{
		clientID: clientID,
		peers:    make(map[string]*p2pLink),
		ptt:      "idle",
		logger:   slog.Default(),
	}
}

func TestApplyPTTStatusOwnRequestIsTransmitting(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "alice")

	var got string
	c.onState = func(state, _, _ string) { got = state }

	c.applyPTTStatus(signaling.Envelope{Type: signaling.TypePTTStatus, State: "transmitting", Speaker: "alice"})

	if got != "transmitting" {
		t.Fatalf("state = %q, want transmitting", got)
	}
}

func TestApplyPTTStatusOtherSpeakerIsReceiving(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "alice")

	var got string
	c.onState = func(state, _, _ string) { got = state }

	c.applyPTTStatus(signaling.Envelope{Type: signaling.TypePTTStatus, State: "transmitting", Speaker: "bob"})

	if got != "receiving" {
		t.Fatalf("state = %q, want receiving", got)
	}
}

func TestApplyPTTStatusIdleWhenNoSpeaker(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "alice")

	var got string
	c.onState = func(state, _, _ string) { got = state }

	c.applyPTTStatus(signaling.Envelope{Type: signaling.TypePTTStatus, State: "idle"})

	if got != "idle" {
		t.Fatalf("state = %q, want idle", got)
	}
}

func TestApplyPTTStatusSkipsCallbackWhenUnchanged(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "alice")

	calls := 0
	c.onState = func(string, string, string) { calls++ }

	c.applyPTTStatus(signaling.Envelope{Type: signaling.TypePTTStatus, State: "idle"})
	c.applyPTTStatus(signaling.Envelope{Type: signaling.TypePTTStatus, State: "idle"})

	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (idle -> idle is not a change)", calls)
	}
}

func TestHandleClientListSkipsAlreadyKnownPeers(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "alice")
	c.peers["bob"] = &p2pLink{clientID: "bob"}

	// Only bob is listed and bob is already known, so handleClientList must
	// not touch the peers map (and, in particular, must not spawn an
	// initiateP2POffer goroutine for a link that already exists).
	c.handleClientList([]signaling.ClientInfo{{ClientID: "bob", DisplayName: "Bob"}})

	if len(c.peers) != 1 {
		t.Fatalf("peers = %d, want 1 (unchanged)", len(c.peers))
	}
}

func TestPendingCandidatesQueuedUntilRemoteDescriptionSet(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "alice")

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new peer connection: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	link := &p2pLink{clientID: "bob", pc: pc}
	c.mu.Lock()
	c.peers["bob"] = link
	c.mu.Unlock()

	cand := &signaling.ICECandidate{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 54400 typ host"}
	c.handleP2PCandidate(signaling.Envelope{Type: signaling.TypeP2PCandidate, From: "bob", Candidate: cand})
	c.handleP2PCandidate(signaling.Envelope{Type: signaling.TypeP2PCandidate, From: "bob", Candidate: cand})

	if len(link.pendingCandidates) != 2 {
		t.Fatalf("pendingCandidates = %d, want 2 (queued before remote description set)", len(link.pendingCandidates))
	}
}

func TestCloseP2PRemovesAndClosesLink(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "alice")

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new peer connection: %v", err)
	}
	c.peers["bob"] = &p2pLink{clientID: "bob", pc: pc}

	c.closeP2P("bob")

	if _, exists := c.peers["bob"]; exists {
		t.Fatal("expected bob removed from peers map")
	}
	if pc.ConnectionState() != webrtc.PeerConnectionStateClosed {
		t.Fatalf("peer connection state = %v, want closed", pc.ConnectionState())
	}
}

func TestDerefHandlesNil(t *testing.T) {
	t.Parallel()
	if got := deref(nil); got != "" {
		t.Fatalf("deref(nil) = %q, want empty string", got)
	}
	s := "mid"
	if got := deref(&s); got != "mid" {
		t.Fatalf("deref(&s) = %q, want %q", got, s)
	}
}
