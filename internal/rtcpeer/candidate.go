package rtcpeer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/gamasenninn/ptt/internal/signaling"
)

// ParseCandidate parses an ICE candidate attribute string of the standard
// form "candidate:<foundation> <component> <protocol> <priority> <ip> <port>
// typ <type> ..." (spec section 6: "Candidate wire format"). Ported from
// original_source/ptt-box/vt_client.py's _handle_p2p_ice_candidate, which
// requires at least 8 whitespace-separated tokens and reads the candidate
// type at index 6 (the "typ" keyword itself sits at index 6; the type value
// is the token immediately after it).
func ParseCandidate(candidate string) (foundation string, component int, protocol string, priority int, ip string, port int, candType string, err error) {
	parts := strings.Fields(candidate)
	if len(parts) < 8 {
		return "", 0, "", 0, "", 0, "", fmt.Errorf("rtcpeer: malformed candidate, want >= 8 tokens, got %d", len(parts))
	}
	if parts[6] != "typ" {
		return "", 0, "", 0, "", 0, "", fmt.Errorf("rtcpeer: malformed candidate, expected \"typ\" at token 6, got %q", parts[6])
	}

	foundationField := strings.TrimPrefix(parts[0], "candidate:")
	component, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", 0, "", 0, "", fmt.Errorf("rtcpeer: malformed candidate component: %w", err)
	}
	priority, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, "", 0, "", 0, "", fmt.Errorf("rtcpeer: malformed candidate priority: %w", err)
	}
	port, err = strconv.Atoi(parts[5])
	if err != nil {
		return "", 0, "", 0, "", 0, "", fmt.Errorf("rtcpeer: malformed candidate port: %w", err)
	}

	return foundationField, component, parts[2], priority, parts[4], port, parts[7], nil
}

// ToICECandidateInit converts a wire-level ICECandidate envelope field into
// the pion/webrtc ICECandidateInit the façade's AddICECandidate expects.
// A malformed candidate is returned as an error; callers must log and
// discard per spec section 4.3 ("A malformed candidate is logged and
// discarded").
func ToICECandidateInit(c *signaling.ICECandidate) (webrtc.ICECandidateInit, error) {
	if c == nil || c.Candidate == "" {
		return webrtc.ICECandidateInit{}, fmt.Errorf("rtcpeer: nil or empty candidate")
	}
	if _, _, _, _, _, _, _, err := ParseCandidate(c.Candidate); err != nil {
		return webrtc.ICECandidateInit{}, err
	}
	init := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}
	init.SDPMLineIndex = c.SDPMLineIndex
	return init, nil
}
