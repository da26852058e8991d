package rtcpeer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/gamasenninn/ptt/internal/config"
)

func TestAnswerNegotiatesAgainstRemoteOffer(t *testing.T) {
	t.Parallel()

	servers := []config.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

	// The offering side is a bare pion connection standing in for a
	// browser/headless client: it is not under test here.
	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new offerer: %v", err)
	}
	defer offerer.Close()
	if _, err := offerer.CreateDataChannel("probe", nil); err != nil {
		t.Fatalf("create data channel: %v", err)
	}

	offer, err := offerer.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(offerer)
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local description: %v", err)
	}
	<-gatherComplete

	peer, err := New(servers, nil, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer peer.Close()

	if err := peer.SetRemoteOffer(offerer.LocalDescription().SDP); err != nil {
		t.Fatalf("SetRemoteOffer returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	answerSDP, err := peer.CreateAnswer(ctx)
	if err != nil {
		t.Fatalf("CreateAnswer returned error: %v", err)
	}
	if !strings.HasPrefix(answerSDP, "v=0") {
		t.Fatalf("expected SDP starting with v=0, got: %q", answerSDP[:20])
	}
}
