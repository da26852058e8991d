// Package vtclient implements a headless participant that speaks the same
// control-channel protocol as a browser: it holds a server peer connection
// for the capture feed and opens P2P mesh connections to other
// participants, exactly as the browser client would (spec section 1,
// expansion section 4.10 "Headless reference client").
//
// Grounded on the teacher's client/client.go (Connect/createPeerConnection/
// handleMessages shape) generalized from its room/screenshot vocabulary to
// the PTT envelope vocabulary, and on original_source/ptt-box/vt_client.py's
// control flow: wait for config, negotiate the server offer/answer, wait
// for ICE gathering before sending, join the P2P mesh on
// client_list/client_joined.
package vtclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/gamasenninn/ptt/internal/rtcpeer"
	"github.com/gamasenninn/ptt/internal/signaling"
	"github.com/gamasenninn/ptt/pkg/audio"
)

// iceGatheringTimeout bounds the wait for local ICE gathering before an
// offer (server link) or answer (P2P link) is sent with whatever candidates
// were gathered so far (spec section 5).
const iceGatheringTimeout = 10 * time.Second

// StateCallback is invoked whenever the client's derived PTT state changes,
// mirroring vt_client.py's _handle_ptt_status.
type StateCallback func(state string, speakerID, speakerName string)

// Client is a headless peer session: a server connection carrying the
// capture feed, plus a P2P mesh to every other participant.
type Client struct {
	serverURL   string
	displayName string
	iceServers  []webrtc.ICEServer

	conn     *websocket.Conn
	writeMu  sync.Mutex
	clientID string

	serverPC   *webrtc.PeerConnection
	localTrack *webrtc.TrackLocalStaticSample

	mu    sync.Mutex
	peers map[string]*p2pLink
	ptt   string

	onState StateCallback
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Client that will dial serverURL once Connect is called.
func New(serverURL, displayName string, onState StateCallback) *Client {
	return &Client{
		serverURL:   serverURL,
		displayName: displayName,
		peers:       make(map[string]*p2pLink),
		ptt:         "idle",
		onState:     onState,
		logger:      slog.Default().With("component", "vtclient"),
		done:        make(chan struct{}),
	}
}

// Connect dials the server, waits for the config handshake, and negotiates
// the server peer connection that carries the capture feed.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("vtclient: dial: %w", err)
	}
	c.conn = conn

	cfg, err := c.waitForConfig()
	if err != nil {
		conn.Close()
		return err
	}
	c.clientID = cfg.ClientID
	c.iceServers = toWebRTCServers(cfg.IceServers)
	c.logger = c.logger.With("clientId", c.clientID)
	c.logger.Info("received config", "iceServers", len(c.iceServers))

	if err := c.setupServerConnection(ctx); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// waitForConfig reads frames until the config envelope arrives, handling an
// interleaved initial ptt_status the way vt_client.py's _wait_for_config
// does.
func (c *Client) waitForConfig() (signaling.Envelope, error) {
	for {
		var env signaling.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return signaling.Envelope{}, fmt.Errorf("vtclient: waiting for config: %w", err)
		}
		switch env.Type {
		case signaling.TypeConfig:
			return env, nil
		case signaling.TypePTTStatus:
			c.applyPTTStatus(env)
		}
	}
}

func (c *Client) setupServerConnection(ctx context.Context) error {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   audio.SampleRate,
			Channels:    audio.Channels,
			SDPFmtpLine: "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("vtclient: register codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: c.iceServers})
	if err != nil {
		return fmt.Errorf("vtclient: new server peer connection: %w", err)
	}
	c.serverPC = pc

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Info("server connection state", "state", state.String())
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("received server track", "id", track.ID())
		go c.drainRemoteTrack(track)
	})

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio-"+c.clientID, "stream-"+c.clientID,
	)
	if err != nil {
		return fmt.Errorf("vtclient: new local track: %w", err)
	}
	c.localTrack = track

	sender, err := pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("vtclient: add track: %w", err)
	}
	go drainRTCP(sender)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("vtclient: create offer: %w", err)
	}
	offer.SDP = rtcpeer.ForceOpusMono(offer.SDP)

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("vtclient: set local description: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, iceGatheringTimeout)
	defer cancel()
	select {
	case <-gatherComplete:
	case <-waitCtx.Done():
		c.logger.Warn("ICE gathering timed out, sending offer with partial candidates")
	}

	if err := c.send(signaling.Envelope{Type: signaling.TypeOffer, SDP: pc.LocalDescription().SDP}); err != nil {
		return err
	}

	return c.waitForAnswer()
}

func (c *Client) waitForAnswer() error {
	for {
		var env signaling.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("vtclient: waiting for answer: %w", err)
		}
		switch env.Type {
		case signaling.TypeAnswer:
			return c.serverPC.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP})
		case signaling.TypePTTStatus:
			c.applyPTTStatus(env)
		}
	}
}

func (c *Client) drainRemoteTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Run processes control-channel envelopes until the connection closes or
// ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		var env signaling.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env signaling.Envelope) {
	switch env.Type {
	case signaling.TypePTTStatus:
		c.applyPTTStatus(env)
	case signaling.TypeClientList:
		c.handleClientList(env.Clients)
	case signaling.TypeClientJoin:
		// Wait for the new participant's own offer, mirroring the browser
		// client's client_joined handler.
	case signaling.TypeClientLeave:
		c.closeP2P(env.ClientID)
	case signaling.TypeP2POffer:
		c.handleP2POffer(env)
	case signaling.TypeP2PAnswer:
		c.handleP2PAnswer(env)
	case signaling.TypeP2PCandidate:
		c.handleP2PCandidate(env)
	}
}

// applyPTTStatus derives idle/transmitting/receiving the way
// vt_client.py's _handle_ptt_status does: "transmitting" if this client is
// the speaker, "receiving" if someone else is, else "idle".
func (c *Client) applyPTTStatus(env signaling.Envelope) {
	var next string
	switch {
	case env.Speaker != "" && env.Speaker == c.clientID:
		next = "transmitting"
	case env.State == "transmitting":
		next = "receiving"
	default:
		next = "idle"
	}

	c.mu.Lock()
	changed := next != c.ptt
	c.ptt = next
	c.mu.Unlock()

	if changed && c.onState != nil {
		c.onState(next, env.Speaker, env.SpeakerName)
	}
}

// RequestFloor sends a ptt_request.
func (c *Client) RequestFloor() error {
	return c.send(signaling.Envelope{Type: signaling.TypePTTRequest})
}

// ReleaseFloor sends a ptt_release.
func (c *Client) ReleaseFloor() error {
	return c.send(signaling.Envelope{Type: signaling.TypePTTRelease})
}

func (c *Client) send(env signaling.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("vtclient: write: %w", err)
	}
	return nil
}

// Close tears down every P2P link, the server connection, and the
// websocket, exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		peers := make([]*p2pLink, 0, len(c.peers))
		for _, link := range c.peers {
			peers = append(peers, link)
		}
		c.peers = map[string]*p2pLink{}
		c.mu.Unlock()

		for _, link := range peers {
			link.pc.Close()
		}
		if c.serverPC != nil {
			c.serverPC.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
		close(c.done)
	})
}

func toWebRTCServers(servers []signaling.IceServerJSON) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}
