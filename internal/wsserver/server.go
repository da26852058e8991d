// Package wsserver implements the /ws and /ws/monitor upgrade handlers that
// wire the Session Registry, Floor Arbiter, Signaling Router, Broadcast
// Dispatcher, and Capture Source together into the control-channel protocol
// (spec sections 2, 4.3, 6). Grounded on the teacher's server/handlers.go
// read loop, generalized from its room/screenshot vocabulary to the PTT
// envelope vocabulary.
package wsserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamasenninn/ptt/internal/broadcast"
	"github.com/gamasenninn/ptt/internal/capture"
	"github.com/gamasenninn/ptt/internal/config"
	"github.com/gamasenninn/ptt/internal/floor"
	"github.com/gamasenninn/ptt/internal/observer"
	"github.com/gamasenninn/ptt/internal/session"
	"github.com/gamasenninn/ptt/internal/signaling"
)

// upgrader matches the teacher's permissive CheckOrigin: this is a
// signaling server meant to be reached from any browser origin configured
// to point at it, not a cookie-authenticated site.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pingInterval is the control-channel keepalive cadence (spec section 6).
const pingInterval = 30 * time.Second

// Server wires the session controller's components into HTTP handlers.
type Server struct {
	registry   *session.Registry
	arbiter    *floor.Arbiter
	dispatcher *broadcast.Dispatcher
	router     *signaling.Router
	captureSrc *capture.Source
	iceServers []config.ICEServer
	assembler  *observer.Assembler

	stop   chan struct{}
	logger *slog.Logger
}

// New builds a Server over the given shared components. registry, arbiter,
// dispatcher, and captureSrc are expected to already be constructed and
// (for captureSrc) started by the caller (cmd/pttserver).
func New(registry *session.Registry, arbiter *floor.Arbiter, dispatcher *broadcast.Dispatcher, captureSrc *capture.Source, iceServers []config.ICEServer) *Server {
	return &Server{
		registry:   registry,
		arbiter:    arbiter,
		dispatcher: dispatcher,
		router:     signaling.NewRouter(registry),
		captureSrc: captureSrc,
		iceServers: iceServers,
		assembler:  observer.NewAssembler(registry, arbiter, time.Now()),
		stop:       make(chan struct{}),
		logger:     slog.Default().With("component", "wsserver"),
	}
}

// Routes registers /ws and /ws/monitor on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/ws/monitor", s.handleMonitor)
}

// Start launches the 1Hz floor-timeout tick (spec section 4.4: "tick(now),
// called at 1 Hz").
func (s *Server) Start() {
	go s.tickLoop()
}

// Stop halts the tick loop.
func (s *Server) Stop() {
	close(s.stop)
}

// Shutdown closes every live session (observers included), awaiting each
// peer connection's Close before returning, so the caller can stop the
// Capture Source once it knows no subscriber is still attached (spec
// section 7: "all sessions are instructed to close, their peer connections
// awaited, then the Capture Source is stopped"). Session.Close is
// idempotent, so this is safe to call even if a connHandler is concurrently
// tearing the same session down on its own read-loop error path.
func (s *Server) Shutdown() {
	sessions := s.registry.Sessions(true)
	var wg sync.WaitGroup
	wg.Add(len(sessions))
	for _, sess := range sessions {
		go func(sess *session.Session) {
			defer wg.Done()
			sess.Close()
		}(sess)
	}
	wg.Wait()
}

func (s *Server) tickLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if revokedOwner, revoked := s.arbiter.Tick(now); revoked {
				s.logger.Info("floor revoked by timeout", "owner", revokedOwner)
				s.dispatcher.FloorStatus(s.registry, "idle", "", "")
			}
		}
	}
}
