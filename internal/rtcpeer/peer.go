package rtcpeer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/gamasenninn/ptt/internal/config"
	"github.com/gamasenninn/ptt/internal/signaling"
)

// iceGatheringTimeout bounds the wait for local ICE gathering to reach
// "complete" before an answer is sent (spec section 5: "bounded wait up to
// 10 s; on expiry, the answer is sent with whatever candidates were
// gathered").
const iceGatheringTimeout = 10 * time.Second

// Facade is the small peer-connection surface the session controller
// drives, so the rest of the system never imports pion/webrtc directly
// (spec section 1: "a small five-method peer-connection façade").
// ConnectionState/ICEConnectionState (below) are deliberately not part of
// this interface: they are read-only diagnostics for the Monitor Snapshot,
// not mutating operations the session controller drives.
type Facade interface {
	SetRemoteOffer(sdp string) error
	CreateAnswer(ctx context.Context) (string, error)
	AddICECandidate(candidate *signaling.ICECandidate) error
	AddAudioTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	Close() error
}

// Peer wraps a pion *webrtc.PeerConnection and implements Facade, grounded
// on the teacher's server/webrtc.go createPeerConnection and on
// server/handlers.go's per-connection event wiring (OnICECandidate, OnTrack,
// OnConnectionStateChange), generalized into named methods.
type Peer struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger
}

// New builds the Opus-only MediaEngine and API the teacher uses, then opens
// a PeerConnection configured with the given ICE servers. onTrack fires when
// the remote side adds an audio track (client-originated P2P/server media);
// onStateChange fires on every connection-state transition, mirroring the
// teacher's OnConnectionStateChange handler.
func New(iceServers []config.ICEServer, onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver), onStateChange func(webrtc.PeerConnectionState)) (*Peer, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    1,
			SDPFmtpLine: "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("rtcpeer: register codec: %w", err)
	}

	webrtcServers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, s := range iceServers {
		webrtcServers = append(webrtcServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: webrtcServers})
	if err != nil {
		return nil, fmt.Errorf("rtcpeer: new peer connection: %w", err)
	}

	p := &Peer{pc: pc, logger: slog.Default().With("component", "rtcpeer")}

	if onTrack != nil {
		pc.OnTrack(onTrack)
	}
	if onStateChange != nil {
		pc.OnConnectionStateChange(onStateChange)
	}
	return p, nil
}

// SetRemoteOffer sets the client's offer as the remote description.
func (p *Peer) SetRemoteOffer(sdp string) error {
	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		return fmt.Errorf("rtcpeer: set remote offer: %w", err)
	}
	return nil
}

// CreateAnswer creates a local answer, forces its Opus section to mono, sets
// it as the local description, and waits for ICE gathering to finish before
// returning the final SDP (spec section 4.3: "server MUST wait for its own
// ICE gathering to reach complete before sending the answer"). The wait is
// bounded by iceGatheringTimeout; on expiry the answer is sent with whatever
// candidates were gathered so far (spec section 5).
func (p *Peer) CreateAnswer(ctx context.Context) (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("rtcpeer: create answer: %w", err)
	}
	answer.SDP = ForceOpusMono(answer.SDP)

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("rtcpeer: set local description: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, iceGatheringTimeout)
	defer cancel()
	select {
	case <-gatherComplete:
	case <-waitCtx.Done():
		p.logger.Warn("ICE gathering timed out, sending answer with partial candidates")
	}

	local := p.pc.LocalDescription()
	return local.SDP, nil
}

// AddICECandidate adds a remote ICE candidate. A malformed candidate is
// returned as an error for the caller to log and discard (spec section 4.3).
func (p *Peer) AddICECandidate(candidate *signaling.ICECandidate) error {
	init, err := ToICECandidateInit(candidate)
	if err != nil {
		return err
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("rtcpeer: add ice candidate: %w", err)
	}
	return nil
}

// AddAudioTrack adds an outbound track to the connection, used by
// internal/capture's Media Sender Façade to attach the shared capture source
// (spec section 4.2).
func (p *Peer) AddAudioTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("rtcpeer: add audio track: %w", err)
	}
	return sender, nil
}

// ConnectionState returns the live RTCPeerConnection connection state (spec
// section 3: Monitor Snapshot "connection state").
func (p *Peer) ConnectionState() string {
	return p.pc.ConnectionState().String()
}

// ICEConnectionState returns the live ICE connection state (spec section 3:
// Monitor Snapshot "ice state").
func (p *Peer) ICEConnectionState() string {
	return p.pc.ICEConnectionState().String()
}

// Close tears down the peer connection. Safe to call once; pion's
// PeerConnection.Close is itself idempotent-safe to call after failure.
func (p *Peer) Close() error {
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("rtcpeer: close: %w", err)
	}
	return nil
}
