package audio

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// Decoder decodes Opus frames back to 48kHz mono PCM16. It has no receive
// timeout and does not substitute silence for missing frames.
type Decoder struct {
	decoder *opus.Decoder
}

// NewDecoder creates an Opus decoder for 48kHz mono.
func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: new decoder: %w", err)
	}
	return &Decoder{decoder: dec}, nil
}

// Decode decodes one Opus frame to PCM16 samples.
func (d *Decoder) Decode(opusData []byte) ([]int16, error) {
	pcm := make([]int16, FrameSamples*4)
	n, err := d.decoder.Decode(opusData, pcm)
	if err != nil {
		return nil, fmt.Errorf("audio: decode: %w", err)
	}
	return pcm[:n], nil
}

// DecodeToBytes decodes one Opus frame to little-endian PCM16 bytes.
func (d *Decoder) DecodeToBytes(opusData []byte) ([]byte, error) {
	pcm, err := d.Decode(opusData)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

// Silence returns one frame of silence. The capture Source publishes it as
// its generated frame; nothing in the P2P receive path uses it.
func Silence() []int16 {
	return make([]int16, FrameSamples)
}
