// Package signaling defines the control-channel wire envelope and the
// client-to-client signaling router.
package signaling

import "encoding/json"

// Type is the discriminator for a signaling Envelope.
type Type string

// Envelope kinds, per spec section 6.
const (
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "ice-candidate"

	TypeP2POffer     Type = "p2p_offer"
	TypeP2PAnswer    Type = "p2p_answer"
	TypeP2PCandidate Type = "p2p_ice_candidate"

	TypePTTRequest Type = "ptt_request"
	TypePTTRelease Type = "ptt_release"

	TypeConfig      Type = "config"
	TypePTTGranted  Type = "ptt_granted"
	TypePTTDenied   Type = "ptt_denied"
	TypePTTStatus   Type = "ptt_status"
	TypeClientList  Type = "client_list"
	TypeClientJoin  Type = "client_joined"
	TypeClientLeave Type = "client_left"
	TypeMonitor     Type = "monitor_state"
)

// ICECandidate is the standard RTCIceCandidateInit wire shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ClientInfo is one entry in a client_list envelope.
type ClientInfo struct {
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName"`
}

// Envelope is the discriminated message exchanged on the control channel.
// Every routed envelope carries From/To; server-originated notifications
// leave them empty.
type Envelope struct {
	Type Type `json:"type"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	SDP       string        `json:"sdp,omitempty"`
	Candidate *ICECandidate `json:"candidate,omitempty"`

	ClientID    string `json:"clientId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	MonitorID   string `json:"monitorId,omitempty"`

	IceServers []IceServerJSON `json:"iceServers,omitempty"`

	State       string `json:"state,omitempty"`
	Speaker     string `json:"speaker,omitempty"`
	SpeakerName string `json:"speakerName,omitempty"`

	Clients []ClientInfo `json:"clients,omitempty"`

	Timestamp int64           `json:"timestamp,omitempty"`
	Stats     json.RawMessage `json:"stats,omitempty"`
	Ptt       json.RawMessage `json:"ptt,omitempty"`

	// MonitorClients carries the full per-client projection (connection
	// state, ice state, duration) on monitor_state envelopes; Clients above
	// carries the slim id/name roster used by client_list/client_joined.
	MonitorClients json.RawMessage `json:"monitorClients,omitempty"`
}

// IceServerJSON is the wire shape of one ICE server sent in a config envelope.
type IceServerJSON struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Marshal serializes the envelope to JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a single control-channel frame into an Envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}
