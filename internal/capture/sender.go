package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/gamasenninn/ptt/pkg/audio"
)

// frameDuration is the presentation duration of one Capture Frame.
const frameDuration = 20 * time.Millisecond

// Sender is the Media Sender Façade: a per-session adapter that consumes
// Capture Frames from one Source subscription, Opus-encodes them, and emits
// them into exactly one outbound audio track (spec section 4.2). It is
// created together with its Peer Session and stopped exactly once on
// session teardown; it is never shared across peer connections even though
// the underlying capture is.
type Sender struct {
	track *webrtc.TrackLocalStaticSample
	sub   *Subscription
	enc   *audio.Encoder

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	logger *slog.Logger
}

// NewSender creates an outbound Opus track and a façade that will stream
// frames from sub into it once Start is called. The returned track must be
// added to the session's peer connection (via rtcpeer.Peer.AddAudioTrack)
// before the local description is generated (spec section 4.2).
func NewSender(sub *Subscription, streamID string) (*Sender, *webrtc.TrackLocalStaticSample, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: 1},
		"audio", streamID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("capture: new local track: %w", err)
	}

	enc, err := audio.NewEncoder()
	if err != nil {
		return nil, nil, fmt.Errorf("capture: new encoder: %w", err)
	}

	s := &Sender{
		track:  track,
		sub:    sub,
		enc:    enc,
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "capture.sender", "stream", streamID),
	}
	return s, track, nil
}

// Start begins streaming frames from the subscription into the track. Call
// once, after the track has been attached to the peer connection.
func (s *Sender) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sender) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case frame, ok := <-s.sub.Frames():
			if !ok {
				return
			}
			encoded, err := s.enc.Encode(frame)
			if err != nil {
				s.logger.Warn("opus encode failed, dropping frame", "err", err)
				continue
			}
			if err := s.track.WriteSample(media.Sample{Data: encoded, Duration: frameDuration}); err != nil {
				s.logger.Info("write sample failed", "err", err)
				return
			}
		}
	}
}

// DrainRTCP reads and discards RTCP receiver reports on sender so a slow or
// absent reader never backs up the SRTP stack, the same "read and discard
// RTCP" idiom the teacher inlines in addTrackToPeer — generalized here to
// actually unmarshal each packet via pion/rtcp, in case a future caller
// wants to inspect loss/jitter instead of merely discarding. Call once
// after AddAudioTrack.
func DrainRTCP(sender *webrtc.RTPSender, logger *slog.Logger) {
	go func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := sender.Read(buf)
			if err != nil {
				return
			}
			if _, err := rtcp.Unmarshal(buf[:n]); err != nil && logger != nil {
				logger.Debug("failed to unmarshal rtcp packet", "err", err)
			}
		}
	}()
}

// Stop stops the frame-streaming goroutine and releases the subscription.
// Idempotent.
func (s *Sender) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.sub.Close()
	})
	s.wg.Wait()
}
