package rtcpeer

import (
	"strings"
	"testing"
)

const sampleSDPNoFmtp = "v=0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtcp-fb:111 transport-cc\r\n"

const sampleSDPWithFmtp = "v=0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=fmtp:111 minptime=10;useinbandfec=1\r\n"

func TestForceOpusMonoInsertsFmtpLineWhenAbsent(t *testing.T) {
	t.Parallel()
	got := ForceOpusMono(sampleSDPNoFmtp)
	if !strings.Contains(got, "a=fmtp:111 stereo=0;sprop-stereo=0") {
		t.Fatalf("expected inserted mono fmtp line, got:\n%s", got)
	}
}

func TestForceOpusMonoAppendsToExistingFmtp(t *testing.T) {
	t.Parallel()
	got := ForceOpusMono(sampleSDPWithFmtp)
	want := "a=fmtp:111 minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0"
	if !strings.Contains(got, want) {
		t.Fatalf("expected %q in transformed SDP, got:\n%s", want, got)
	}
}

func TestForceOpusMonoNoOpWhenNoOpus(t *testing.T) {
	t.Parallel()
	sdp := "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 0\r\na=rtpmap:0 PCMU/8000\r\n"
	if got := ForceOpusMono(sdp); got != sdp {
		t.Fatalf("expected no-op for non-opus SDP, got:\n%s", got)
	}
}

// TestForceOpusMonoIdempotent targets testable property 8: applying the
// transform twice equals applying it once.
func TestForceOpusMonoIdempotent(t *testing.T) {
	t.Parallel()
	for name, sdp := range map[string]string{
		"no-fmtp":   sampleSDPNoFmtp,
		"with-fmtp": sampleSDPWithFmtp,
	} {
		once := ForceOpusMono(sdp)
		twice := ForceOpusMono(once)
		if once != twice {
			t.Errorf("%s: not idempotent:\nonce:  %q\ntwice: %q", name, once, twice)
		}
	}
}
