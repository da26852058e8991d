package wsserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamasenninn/ptt/internal/signaling"
)

// wsSink is the control-channel write side of one connection: a
// mutex-guarded WriteJSON, matching the teacher's Peer.SendMessage in
// server/peer.go (gorilla/websocket connections are not safe for concurrent
// writers).
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

// Send implements session.Sink.
func (s *wsSink) Send(env signaling.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("wsserver: write: %w", err)
	}
	return nil
}

// Ping sends a control-frame keepalive (spec section 6: "application-level
// ping/pong at 30s cadence"). gorilla/websocket documents WriteControl as
// safe to call concurrently with WriteMessage/WriteJSON, so this does not
// need the Send mutex.
func (s *wsSink) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}
