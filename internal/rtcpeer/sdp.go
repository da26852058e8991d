// Package rtcpeer is the five-method peer-connection façade the session
// controller drives (spec section 1): it owns SDP negotiation, ICE, and the
// Opus-mono SDP transform, so the rest of the system never touches
// pion/webrtc directly.
package rtcpeer

import "regexp"

var (
	opusRtpmapRe = regexp.MustCompile(`a=rtpmap:(\d+) opus/48000/2`)
)

// ForceOpusMono rewrites the Opus media section of sdp to mono, matching
// the browser client's forceOpusMono behavior (spec section 6: "SDP
// transform"). Ported from original_source/ptt-box/vt_client.py's
// force_opus_mono: find the payload type bound to opus/48000/2, then either
// append "stereo=0;sprop-stereo=0" to its existing fmtp line or, if none
// exists, insert a new fmtp line right after the rtpmap line.
//
// Idempotent: a second application is a no-op, because the fmtp line it
// would otherwise insert already exists and already carries stereo=0.
func ForceOpusMono(sdp string) string {
	match := opusRtpmapRe.FindStringSubmatch(sdp)
	if match == nil {
		return sdp
	}
	payloadType := match[1]

	fmtpRe := regexp.MustCompile(`a=fmtp:` + payloadType + ` ([^\r\n]+)`)
	if loc := fmtpRe.FindStringSubmatchIndex(sdp); loc != nil {
		existing := sdp[loc[2]:loc[3]]
		if alreadyMono(existing) {
			return sdp
		}
		return fmtpRe.ReplaceAllString(sdp, `a=fmtp:`+payloadType+` $1;stereo=0;sprop-stereo=0`)
	}

	rtpmapLineRe := regexp.MustCompile(`(a=rtpmap:` + payloadType + ` opus/48000/2)`)
	return rtpmapLineRe.ReplaceAllString(sdp, "$1\r\na=fmtp:"+payloadType+" stereo=0;sprop-stereo=0")
}

func alreadyMono(fmtpValue string) bool {
	return regexp.MustCompile(`(^|;)\s*stereo=0`).MatchString(fmtpValue)
}
