// Package capture implements the Capture Source (one process-wide producer
// of PCM frames, fanned out to many subscribers) and the Media Sender
// Façade that adapts a subscription into one outbound Opus/RTP track
// (spec sections 4.1, 4.2).
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gamasenninn/ptt/pkg/audio"
)

// QueueDepth is the bound on each subscriber's frame queue: 100 frames, 2s
// at 20ms/frame (spec section 4.1).
const QueueDepth = 100

// frameInterval is the wall-clock cadence at which the source emits frames:
// one per 20ms frame (spec section 3: "Capture Frame").
const frameInterval = 20 * time.Millisecond

// Subscription is the subscribe-return handle spec section 4.1 describes:
// closing it releases the subscriber's queue. Subscribe/unsubscribe are
// idempotent; a second Close is a no-op.
type Subscription struct {
	id     uint64
	frames chan []int16
	lost   *atomic.Int64
	source *Source
	once   sync.Once
}

// Frames returns the channel of delivered Capture Frames.
func (s *Subscription) Frames() <-chan []int16 { return s.frames }

// Lost returns the number of frames dropped for this subscriber due to
// backpressure (spec section 4.1: "per-subscriber loss counter").
func (s *Subscription) Lost() int64 { return s.lost.Load() }

// Close unsubscribes and releases the queue.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.source.unsubscribe(s.id)
		close(s.frames)
	})
}

// Source is the single process-wide producer of 20ms/48kHz/mono PCM frames
// (spec section 4.1). On a platform with no bound real capture device
// (the default here, since hardware bindings are out of scope — see
// SPEC_FULL.md section 4.1), it runs a deterministic silence generator at
// the native cadence, so the rest of the pipeline is fully exercised without
// hardware; a real device would satisfy the same subscribe/publish contract
// behind this type.
type Source struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *slog.Logger
}

// NewSource creates a Source. Call Start to begin producing frames.
func NewSource() *Source {
	return &Source{
		subs:   make(map[uint64]*Subscription),
		stop:   make(chan struct{}),
		logger: slog.Default().With("component", "capture.source"),
	}
}

// SampleRate returns the source's fixed sample rate.
func (s *Source) SampleRate() int { return audio.SampleRate }

// FrameSamples returns the number of samples per frame.
func (s *Source) FrameSamples() int { return audio.FrameSamples }

// Subscribe registers a new subscriber with a bounded queue. Idempotent in
// the sense that repeated Subscribe calls simply add independent
// subscriptions; there is no dedup key, matching spec section 4.1's
// "idempotent" requirement at the level of subscribe/unsubscribe pairs, not
// subscriber identity.
func (s *Source) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &Subscription{
		id:     s.nextID,
		frames: make(chan []int16, QueueDepth),
		lost:   &atomic.Int64{},
		source: s,
	}
	s.subs[sub.id] = sub
	return sub
}

func (s *Source) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Start launches the producer goroutine. Safe to call once per Source.
func (s *Source) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the producer goroutine and waits for it to exit.
func (s *Source) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Source) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.publish(audio.Silence())
		}
	}
}

// publish fans one frame out to every subscriber. It holds the lock only
// long enough to enumerate queues (spec section 5: "publish path holds the
// lock only long enough to enumerate queues"); the send itself is
// non-blocking, so one blocked subscriber never delays another (spec
// testable property 6).
func (s *Source) publish(frame []int16) {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		frameCopy := make([]int16, len(frame))
		copy(frameCopy, frame)
		select {
		case sub.frames <- frameCopy:
		default:
			sub.lost.Add(1)
		}
	}
}
