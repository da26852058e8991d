// Package audio provides Opus encode/decode helpers for the 48kHz mono,
// 960-sample (20ms) frame format used throughout the PTT system.
package audio

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	// SampleRate is the capture/playback sample rate used everywhere in this system.
	SampleRate = 48000
	// Channels is always 1: the system never carries stereo audio.
	Channels = 1
	// FrameSamples is the number of samples in one 20ms frame at SampleRate.
	FrameSamples = 960
)

// Encoder encodes 20ms mono PCM16 frames to Opus.
type Encoder struct {
	encoder *opus.Encoder
}

// NewEncoder creates an Opus encoder tuned for voice at 48kHz mono.
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: new encoder: %w", err)
	}
	enc.SetBitrate(32000)
	return &Encoder{encoder: enc}, nil
}

// Encode encodes one frame of PCM16 samples (len(pcm) must equal FrameSamples) to Opus.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSamples {
		return nil, fmt.Errorf("audio: encode: expected %d samples, got %d", FrameSamples, len(pcm))
	}
	out := make([]byte, 512)
	n, err := e.encoder.Encode(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("audio: encode: %w", err)
	}
	return out[:n], nil
}

// EncodeBytes encodes one frame of little-endian PCM16 bytes to Opus.
func (e *Encoder) EncodeBytes(pcmBytes []byte) ([]byte, error) {
	pcm := make([]int16, len(pcmBytes)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(pcmBytes[i*2:]))
	}
	return e.Encode(pcm)
}
