package vtclient

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/gamasenninn/ptt/internal/rtcpeer"
	"github.com/gamasenninn/ptt/internal/signaling"
)

// p2pLink is one direct connection to another participant, generalized from
// vt_client.py's P2PConnection dataclass: a peer connection plus the ICE
// candidates that arrived before the remote description was set.
type p2pLink struct {
	clientID          string
	pc                *webrtc.PeerConnection
	remoteDescSet     bool
	pendingCandidates []*signaling.ICECandidate
}

func (c *Client) newP2PLink(remoteID string) (*p2pLink, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: c.iceServers})
	if err != nil {
		return nil, fmt.Errorf("vtclient: new p2p peer connection to %s: %w", remoteID, err)
	}

	link := &p2pLink{clientID: remoteID, pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		c.send(signaling.Envelope{
			Type:      signaling.TypeP2PCandidate,
			To:        remoteID,
			Candidate: &signaling.ICECandidate{Candidate: init.Candidate, SDPMid: deref(init.SDPMid), SDPMLineIndex: init.SDPMLineIndex},
		})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("received p2p track", "from", remoteID, "id", track.ID())
		go c.drainRemoteTrack(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			c.closeP2P(remoteID)
		}
	})

	if c.localTrack != nil {
		if _, err := pc.AddTrack(c.localTrack); err != nil {
			pc.Close()
			return nil, fmt.Errorf("vtclient: add shared track to p2p link %s: %w", remoteID, err)
		}
	}

	c.mu.Lock()
	c.peers[remoteID] = link
	c.mu.Unlock()
	return link, nil
}

// handleClientList initiates an offer to every existing participant, the
// way the browser client (and vt_client.py's _handle_client_list) treats an
// incoming roster: the newcomer offers to everyone already present.
func (c *Client) handleClientList(clients []signaling.ClientInfo) {
	for _, peer := range clients {
		c.mu.Lock()
		_, exists := c.peers[peer.ClientID]
		c.mu.Unlock()
		if exists {
			continue
		}
		go c.initiateP2POffer(peer.ClientID)
	}
}

func (c *Client) initiateP2POffer(remoteID string) {
	link, err := c.newP2PLink(remoteID)
	if err != nil {
		c.logger.Warn("failed to create p2p link", "to", remoteID, "err", err)
		return
	}

	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		c.logger.Warn("failed to create p2p offer", "to", remoteID, "err", err)
		return
	}
	offer.SDP = rtcpeer.ForceOpusMono(offer.SDP)

	gatherComplete := webrtc.GatheringCompletePromise(link.pc)
	if err := link.pc.SetLocalDescription(offer); err != nil {
		c.logger.Warn("failed to set p2p local description", "to", remoteID, "err", err)
		return
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), iceGatheringTimeout)
	defer cancel()
	select {
	case <-gatherComplete:
	case <-waitCtx.Done():
	}

	c.send(signaling.Envelope{Type: signaling.TypeP2POffer, To: remoteID, SDP: link.pc.LocalDescription().SDP})
}

func (c *Client) handleP2POffer(env signaling.Envelope) {
	if env.From == "" || env.SDP == "" {
		return
	}
	c.mu.Lock()
	link, exists := c.peers[env.From]
	c.mu.Unlock()
	if !exists {
		var err error
		link, err = c.newP2PLink(env.From)
		if err != nil {
			c.logger.Warn("failed to create p2p link for incoming offer", "from", env.From, "err", err)
			return
		}
	}

	if err := link.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDP}); err != nil {
		c.logger.Warn("failed to set p2p remote offer", "from", env.From, "err", err)
		return
	}
	link.remoteDescSet = true
	c.flushPendingCandidates(link)

	answer, err := link.pc.CreateAnswer(nil)
	if err != nil {
		c.logger.Warn("failed to create p2p answer", "to", env.From, "err", err)
		return
	}
	answer.SDP = rtcpeer.ForceOpusMono(answer.SDP)

	gatherComplete := webrtc.GatheringCompletePromise(link.pc)
	if err := link.pc.SetLocalDescription(answer); err != nil {
		c.logger.Warn("failed to set p2p local answer", "to", env.From, "err", err)
		return
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), iceGatheringTimeout)
	defer cancel()
	select {
	case <-gatherComplete:
	case <-waitCtx.Done():
	}

	c.send(signaling.Envelope{Type: signaling.TypeP2PAnswer, To: env.From, SDP: link.pc.LocalDescription().SDP})
}

func (c *Client) handleP2PAnswer(env signaling.Envelope) {
	if env.From == "" || env.SDP == "" {
		return
	}
	c.mu.Lock()
	link, exists := c.peers[env.From]
	c.mu.Unlock()
	if !exists {
		c.logger.Warn("p2p answer from unknown peer", "from", env.From)
		return
	}
	if err := link.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}); err != nil {
		c.logger.Warn("failed to set p2p remote answer", "from", env.From, "err", err)
		return
	}
	link.remoteDescSet = true
	c.flushPendingCandidates(link)
}

// handleP2PCandidate queues the candidate if the remote description has not
// yet been set, matching vt_client.py's pending_candidates buffering.
func (c *Client) handleP2PCandidate(env signaling.Envelope) {
	if env.From == "" || env.Candidate == nil {
		return
	}
	c.mu.Lock()
	link, exists := c.peers[env.From]
	c.mu.Unlock()
	if !exists {
		var err error
		link, err = c.newP2PLink(env.From)
		if err != nil {
			c.logger.Warn("failed to create p2p link for incoming candidate", "from", env.From, "err", err)
			return
		}
	}

	if !link.remoteDescSet {
		link.pendingCandidates = append(link.pendingCandidates, env.Candidate)
		return
	}
	if err := addCandidate(link.pc, env.Candidate); err != nil {
		c.logger.Info("malformed p2p ice candidate, discarding", "from", env.From, "err", err)
	}
}

func (c *Client) flushPendingCandidates(link *p2pLink) {
	pending := link.pendingCandidates
	link.pendingCandidates = nil
	for _, cand := range pending {
		if err := addCandidate(link.pc, cand); err != nil {
			c.logger.Info("malformed queued p2p ice candidate, discarding", "from", link.clientID, "err", err)
		}
	}
}

func addCandidate(pc *webrtc.PeerConnection, cand *signaling.ICECandidate) error {
	init, err := rtcpeer.ToICECandidateInit(cand)
	if err != nil {
		return err
	}
	return pc.AddICECandidate(init)
}

func (c *Client) closeP2P(remoteID string) {
	c.mu.Lock()
	link, exists := c.peers[remoteID]
	if exists {
		delete(c.peers, remoteID)
	}
	c.mu.Unlock()
	if exists {
		link.pc.Close()
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
