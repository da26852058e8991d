// Package observer implements the Observer Channel: monitor snapshot
// assembly and its 1 Hz periodic push to attached observer sessions
// (spec section 4.8).
package observer

import (
	"encoding/json"
	"time"

	"github.com/gamasenninn/ptt/internal/floor"
	"github.com/gamasenninn/ptt/internal/session"
	"github.com/gamasenninn/ptt/internal/signaling"
)

// snapshotInterval is the cadence at which observers receive monitor_state
// pushes (spec section 4.8: "periodic 1 Hz snapshots").
const snapshotInterval = time.Second

// ClientView is one member's projection in a Monitor Snapshot (spec section
// 3: "the registry members projected to (client_id, display_name,
// connected_at, duration, connection state, ice state)").
type ClientView struct {
	ClientID           string  `json:"clientId"`
	DisplayName        string  `json:"displayName"`
	ConnectedAt        int64   `json:"connectedAt"`
	DurationSec        float64 `json:"durationSec"`
	ConnectionState    string  `json:"connectionState,omitempty"`
	ICEConnectionState string  `json:"iceConnectionState,omitempty"`
}

// FloorView is the floor state projected into a snapshot.
type FloorView struct {
	State       string  `json:"state"`
	Speaker     string  `json:"speaker,omitempty"`
	SpeakerName string  `json:"speakerName,omitempty"`
	ElapsedSec  float64 `json:"elapsedSec,omitempty"`
}

// Stats is the coarse counters in a snapshot (spec section 3).
type Stats struct {
	Members  int     `json:"members"`
	Observers int    `json:"observers"`
	UptimeSec float64 `json:"uptimeSec"`
}

// Snapshot is the Monitor Snapshot view value, assembled on demand by
// walking the Registry and the Arbiter (spec section 3).
type Snapshot struct {
	Timestamp int64        `json:"timestamp"`
	Clients   []ClientView `json:"clients"`
	Floor     FloorView    `json:"floor"`
	Stats     Stats        `json:"stats"`
}

// Assembler builds Snapshots from a Registry and an Arbiter.
type Assembler struct {
	registry *session.Registry
	arbiter  *floor.Arbiter
	start    time.Time
}

// NewAssembler creates an Assembler. start is the process/session-registry
// start time, used for the uptime counter.
func NewAssembler(registry *session.Registry, arbiter *floor.Arbiter, start time.Time) *Assembler {
	return &Assembler{registry: registry, arbiter: arbiter, start: start}
}

// Assemble builds one Monitor Snapshot at now.
func (a *Assembler) Assemble(now time.Time) Snapshot {
	members := a.registry.Members(true)
	clients := make([]ClientView, 0, len(members))
	for _, m := range members {
		clients = append(clients, ClientView{
			ClientID:           m.ClientID,
			DisplayName:        m.DisplayName,
			ConnectedAt:        m.ConnectedAt.Unix(),
			DurationSec:        now.Sub(m.ConnectedAt).Seconds(),
			ConnectionState:    m.ConnectionState,
			ICEConnectionState: m.ICEConnectionState,
		})
	}

	fstate := a.arbiter.Snapshot()
	fview := FloorView{State: "idle"}
	if !fstate.Idle() {
		fview.State = "transmitting"
		fview.Speaker = fstate.Owner
		fview.SpeakerName = a.arbiter.OwnerName()
		fview.ElapsedSec = fstate.Elapsed.Seconds()
	}

	memberCount, observerCount := a.registry.Count()

	return Snapshot{
		Timestamp: now.Unix(),
		Clients:   clients,
		Floor:     fview,
		Stats: Stats{
			Members:   memberCount,
			Observers: observerCount,
			UptimeSec: now.Sub(a.start).Seconds(),
		},
	}
}

// Envelope wraps a Snapshot in the monitor_state envelope shape (spec
// section 6: observer-only notification).
func (s Snapshot) Envelope() signaling.Envelope {
	stats, _ := json.Marshal(s.Stats)
	clients, _ := json.Marshal(s.Clients)
	ptt, _ := json.Marshal(s.Floor)
	return signaling.Envelope{
		Type:           signaling.TypeMonitor,
		Timestamp:      s.Timestamp,
		MonitorClients: clients,
		Stats:          stats,
		Ptt:            ptt,
	}
}

// Pusher periodically sends monitor_state snapshots to one observer
// session until Stop is called (spec section 4.8: "periodic 1 Hz snapshots
// thereafter until they disconnect").
type Pusher struct {
	assembler *Assembler
	target    session.Sink
	stop      chan struct{}
}

// NewPusher creates a Pusher for one observer's sink.
func NewPusher(assembler *Assembler, target session.Sink) *Pusher {
	return &Pusher{assembler: assembler, target: target, stop: make(chan struct{})}
}

// Run sends an initial snapshot immediately, then one every snapshotInterval
// until Stop is called. Intended to run in its own goroutine.
func (p *Pusher) Run() {
	p.push()
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.push()
		}
	}
}

func (p *Pusher) push() {
	snap := p.assembler.Assemble(time.Now())
	_ = p.target.Send(snap.Envelope())
}

// Stop halts the periodic push.
func (p *Pusher) Stop() {
	close(p.stop)
}
