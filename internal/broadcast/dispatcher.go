// Package broadcast implements the Broadcast Dispatcher: one logical
// emitter that serializes floor status, membership deltas, and peer-list
// notifications so every recipient observes a single consistent order
// (spec section 4.7).
package broadcast

import (
	"log/slog"

	"github.com/gamasenninn/ptt/internal/session"
	"github.com/gamasenninn/ptt/internal/signaling"
)

// job is one queued broadcast: a set of recipients and the envelope to send
// each of them (the envelope may differ per recipient, e.g. client_list is
// addressed to exactly one joiner).
type job struct {
	targets []*session.Session
	env     signaling.Envelope
}

// Dispatcher generalizes the teacher's Room.BroadcastExcept (a direct,
// unserialized loop over room.Peers) into a single worker goroutine reading
// off a channel, which is what gives the total-order guarantee spec section
// 4.7 and testable property 5 require: two broadcasts enqueued in order A,
// B are always delivered to any shared recipient in that order, even though
// BroadcastExcept itself is not atomic with respect to other callers.
type Dispatcher struct {
	jobs   chan job
	done   chan struct{}
	logger *slog.Logger
}

// New creates a Dispatcher and starts its serializing worker goroutine.
func New() *Dispatcher {
	d := &Dispatcher{
		jobs:   make(chan job, 256),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "broadcast.dispatcher"),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for j := range d.jobs {
		for _, target := range j.targets {
			if err := target.Send(j.env); err != nil {
				// Best-effort delivery: a failed send logs and continues to
				// the next recipient, no retry (spec section 4.7).
				d.logger.Info("broadcast delivery failed", "to", target.ClientID(), "type", j.env.Type, "err", err)
			}
		}
	}
	close(d.done)
}

// Stop closes the job queue and waits for the worker to drain it.
func (d *Dispatcher) Stop() {
	close(d.jobs)
	<-d.done
}

// enqueue submits a broadcast job. It only puts the job onto the channel and
// does not wait for delivery; it blocks only while all 256 queue slots are
// full.
func (d *Dispatcher) enqueue(targets []*session.Session, env signaling.Envelope) {
	d.jobs <- job{targets: targets, env: env}
}

// FloorStatus broadcasts ptt_status to every non-observer member (spec
// section 4.7: delivered "on every floor-change event and on every
// membership change where the floor is non-idle").
func (d *Dispatcher) FloorStatus(registry *session.Registry, state, speaker, speakerName string) {
	env := signaling.Envelope{Type: signaling.TypePTTStatus, State: state, Speaker: speaker, SpeakerName: speakerName}
	d.enqueue(registry.Sessions(false), env)
}

// MemberJoined broadcasts client_joined to every non-observer member except
// the subject.
func (d *Dispatcher) MemberJoined(registry *session.Registry, subject *session.Session) {
	d.enqueue(exceptSubject(registry.Sessions(false), subject), signaling.Envelope{
		Type:        signaling.TypeClientJoin,
		ClientID:    subject.ClientID(),
		DisplayName: subject.DisplayName(),
	})
}

// MemberLeft broadcasts client_left to every non-observer member except the
// subject (spec testable property 4: exactly once per session lifetime).
func (d *Dispatcher) MemberLeft(registry *session.Registry, subject *session.Session) {
	d.enqueue(exceptSubject(registry.Sessions(false), subject), signaling.Envelope{
		Type:     signaling.TypeClientLeave,
		ClientID: subject.ClientID(),
	})
}

// ClientList delivers the full peer list to exactly one newly-joining
// session (spec section 4.7: "delivered only to a newly-joining session").
func (d *Dispatcher) ClientList(registry *session.Registry, joiner *session.Session) {
	members := registry.Members(false)
	clients := make([]signaling.ClientInfo, 0, len(members))
	for _, m := range members {
		if m.ClientID == joiner.ClientID() {
			continue
		}
		clients = append(clients, signaling.ClientInfo{ClientID: m.ClientID, DisplayName: m.DisplayName})
	}
	d.enqueue([]*session.Session{joiner}, signaling.Envelope{Type: signaling.TypeClientList, Clients: clients})
}

func exceptSubject(all []*session.Session, subject *session.Session) []*session.Session {
	out := make([]*session.Session, 0, len(all))
	for _, s := range all {
		if s.ClientID() != subject.ClientID() {
			out = append(out, s)
		}
	}
	return out
}
