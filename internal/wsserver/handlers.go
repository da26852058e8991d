package wsserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/gamasenninn/ptt/internal/capture"
	"github.com/gamasenninn/ptt/internal/config"
	"github.com/gamasenninn/ptt/internal/floor"
	"github.com/gamasenninn/ptt/internal/observer"
	"github.com/gamasenninn/ptt/internal/rtcpeer"
	"github.com/gamasenninn/ptt/internal/session"
	"github.com/gamasenninn/ptt/internal/signaling"
)

// handleWS upgrades a browser/headless client connection and runs its
// control-channel read loop (spec sections 4.3, 6).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Info("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	id := session.NewClientID()
	sink := newWSSink(conn)
	sess := session.New(id, "", false, sink, nil)
	logger := s.logger.With("clientId", id)

	sess.MarkHandshaking()
	if err := sess.Send(signaling.Envelope{
		Type:       signaling.TypeConfig,
		ClientID:   id,
		IceServers: iceServersJSON(s.iceServers),
	}); err != nil {
		logger.Info("failed to send initial config", "err", err)
		return
	}
	_ = sess.Send(currentFloorStatus(s.arbiter))

	sess.MarkReady()
	s.registry.Insert(sess)

	h := &connHandler{server: s, conn: conn, sink: sink, sess: sess, logger: logger, pingDone: make(chan struct{})}
	armKeepalive(conn)
	go h.pingLoop()
	h.readLoop()
	h.teardown()
}

// handleMonitor upgrades an Observer Channel connection (spec section 4.8,
// scenario S6).
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Info("monitor websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	id := session.NewClientID()
	sink := newWSSink(conn)
	sess := session.New(id, "Monitor-"+id, true, sink, nil)
	logger := s.logger.With("monitorId", id)

	sess.MarkHandshaking()
	if err := sess.Send(signaling.Envelope{Type: signaling.TypeConfig, MonitorID: id}); err != nil {
		logger.Info("failed to send initial config", "err", err)
		return
	}
	sess.MarkReady()
	s.registry.Insert(sess)

	pusher := observer.NewPusher(s.assembler, sink)
	go pusher.Run()
	defer pusher.Stop()

	h := &connHandler{server: s, conn: conn, sink: sink, sess: sess, logger: logger, pingDone: make(chan struct{})}
	armKeepalive(conn)
	go h.pingLoop()
	h.readLoop()
	h.teardown()
}

// armKeepalive sets the initial read deadline and pong handler that extend
// it, so a silent, half-open connection is detected within roughly two
// ping intervals (spec section 6).
func armKeepalive(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		return nil
	})
}

// connHandler holds the per-connection state needed to dispatch one
// session's control-channel frames (spec section 5: "Within one peer
// session's control channel, messages are processed in FIFO order" — a
// single goroutine reading conn.ReadJSON in a loop gives that for free).
type connHandler struct {
	server *Server
	conn   *websocket.Conn
	sink   *wsSink
	sess   *session.Session
	logger *slog.Logger

	peer   *rtcpeer.Peer
	sender *capture.Sender

	pingDone     chan struct{}
	pingStopOnce sync.Once

	// announced is set once MemberJoined/ClientList have actually been
	// broadcast (spec section 4.3: on the negotiating -> active transition,
	// not on connect). teardown uses it to decide whether a matching
	// client_left is owed.
	announced atomic.Bool
}

func (h *connHandler) readLoop() {
	for {
		var env signaling.Envelope
		if err := h.conn.ReadJSON(&env); err != nil {
			return
		}
		h.dispatch(env)
	}
}

// pingLoop sends a keepalive ping every pingInterval until the connection
// tears down (spec section 6).
func (h *connHandler) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.pingDone:
			return
		case <-ticker.C:
			if err := h.sink.Ping(); err != nil {
				return
			}
		}
	}
}

func (h *connHandler) stopPingLoop() {
	h.pingStopOnce.Do(func() { close(h.pingDone) })
}

func (h *connHandler) dispatch(env signaling.Envelope) {
	switch env.Type {
	case signaling.TypeOffer:
		h.handleOffer(env)
	case signaling.TypeCandidate:
		h.handleCandidate(env)
	case signaling.TypePTTRequest:
		h.handlePTTRequest()
	case signaling.TypePTTRelease:
		h.handlePTTRelease()
	case signaling.TypeP2POffer, signaling.TypeP2PAnswer, signaling.TypeP2PCandidate:
		h.server.router.Route(h.sess, env)
	default:
		h.logger.Info("dropping unrecognized envelope", "type", env.Type)
	}
}

// handleOffer drives the ready -> negotiating -> active transitions (spec
// section 4.3): set remote description, create and attach a media sender,
// produce a mono-transformed answer after local ICE gathering completes.
// Membership deltas (client_joined to others, client_list to self) are
// emitted only once the session reaches active, matching scenario S5's
// required order: config -> ptt_status -> offer -> answer ->
// client_list/client_joined. A session that never completes negotiation
// never appears in anyone's roster and never owes a client_left.
func (h *connHandler) handleOffer(env signaling.Envelope) {
	peer, err := rtcpeer.New(h.server.iceServers, nil, h.onConnectionStateChange)
	if err != nil {
		h.logger.Warn("failed to create peer connection", "err", err)
		return
	}

	if err := peer.SetRemoteOffer(env.SDP); err != nil {
		// Failure to set remote description is fatal to the session (spec
		// section 4.3).
		h.logger.Warn("failed to set remote offer, closing session", "err", err)
		peer.Close()
		h.teardown()
		return
	}

	sub := h.server.captureSrc.Subscribe()
	sender, track, err := capture.NewSender(sub, "stream-"+h.sess.ClientID())
	if err != nil {
		h.logger.Warn("failed to create media sender", "err", err)
		sub.Close()
		peer.Close()
		return
	}

	rtpSender, err := peer.AddAudioTrack(track)
	if err != nil {
		h.logger.Warn("failed to attach media sender track", "err", err)
		sender.Stop()
		peer.Close()
		return
	}
	capture.DrainRTCP(rtpSender, h.logger)

	h.sess.MarkNegotiating(peer, sender)
	h.peer = peer
	h.sender = sender

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second) // generous bound around the façade's own 10s ICE wait
	defer cancel()
	answerSDP, err := peer.CreateAnswer(ctx)
	if err != nil {
		h.logger.Warn("failed to create answer, closing session", "err", err)
		h.teardown()
		return
	}

	if err := h.sess.Send(signaling.Envelope{Type: signaling.TypeAnswer, SDP: answerSDP}); err != nil {
		h.logger.Info("failed to send answer", "err", err)
		return
	}
	h.sess.MarkActive()
	if !h.sess.IsObserver() {
		h.server.dispatcher.MemberJoined(h.server.registry, h.sess)
		h.server.dispatcher.ClientList(h.server.registry, h.sess)
		h.announced.Store(true)
	}
	sender.Start()
}

func (h *connHandler) handleCandidate(env signaling.Envelope) {
	if h.peer == nil || env.Candidate == nil {
		return
	}
	if err := h.peer.AddICECandidate(env.Candidate); err != nil {
		h.logger.Info("malformed ice candidate, discarding", "err", err)
	}
}

func (h *connHandler) handlePTTRequest() {
	granted, ownerID, ownerName := h.server.arbiter.Request(h.sess.ClientID(), h.sess.DisplayName())
	if granted {
		_ = h.sess.Send(signaling.Envelope{Type: signaling.TypePTTGranted})
		h.server.dispatcher.FloorStatus(h.server.registry, "transmitting", h.sess.ClientID(), h.sess.DisplayName())
		return
	}
	_ = h.sess.Send(signaling.Envelope{Type: signaling.TypePTTDenied, Speaker: ownerID, SpeakerName: ownerName})
}

func (h *connHandler) handlePTTRelease() {
	if h.server.arbiter.Release(h.sess.ClientID()) {
		h.server.dispatcher.FloorStatus(h.server.registry, "idle", "", "")
	}
}

func (h *connHandler) onConnectionStateChange(state webrtc.PeerConnectionState) {
	if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed ||
		state == webrtc.PeerConnectionStateDisconnected {
		h.teardown()
	}
}

// teardown runs the any-state -> closing -> closed path exactly once per
// session (spec section 4.3, 5): release the floor if held, broadcast
// client_left, stop the media sender and close the peer connection
// (Session.Close), then remove the session from the Registry.
func (h *connHandler) teardown() {
	if !h.sess.BeginClosing() {
		return
	}
	h.stopPingLoop()
	if h.server.arbiter.Release(h.sess.ClientID()) {
		// Testable property 3: the Arbiter is idle before the next
		// ptt_status broadcast.
		h.server.dispatcher.FloorStatus(h.server.registry, "idle", "", "")
	}
	if h.announced.Load() {
		h.server.dispatcher.MemberLeft(h.server.registry, h.sess)
	}
	h.sess.Close()
	h.server.registry.Remove(h.sess.ClientID())
	// Unblock a read loop that's blocked on ReadJSON when teardown was
	// triggered by a peer-connection state change rather than a read error.
	_ = h.conn.Close()
}

func iceServersJSON(servers []config.ICEServer) []signaling.IceServerJSON {
	out := make([]signaling.IceServerJSON, 0, len(servers))
	for _, s := range servers {
		out = append(out, signaling.IceServerJSON{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

func currentFloorStatus(arbiter *floor.Arbiter) signaling.Envelope {
	snap := arbiter.Snapshot()
	if snap.Idle() {
		return signaling.Envelope{Type: signaling.TypePTTStatus, State: "idle"}
	}
	return signaling.Envelope{
		Type:        signaling.TypePTTStatus,
		State:       "transmitting",
		Speaker:     snap.Owner,
		SpeakerName: arbiter.OwnerName(),
	}
}
