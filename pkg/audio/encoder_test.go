package audio

import "testing"

func TestEncodeRejectsWrongFrameSize(t *testing.T) {
	t.Parallel()

	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	if _, err := enc.Encode(make([]int16, FrameSamples-1)); err == nil {
		t.Fatal("expected error for short frame, got nil")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	pcm := make([]int16, FrameSamples)
	for i := range pcm {
		pcm[i] = int16(i % 100)
	}

	encoded, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoded frame")
	}

	decoded, err := dec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != FrameSamples {
		t.Fatalf("expected %d decoded samples, got %d", FrameSamples, len(decoded))
	}
}

func TestSilenceFrame(t *testing.T) {
	t.Parallel()

	s := Silence()
	if len(s) != FrameSamples {
		t.Fatalf("expected %d samples, got %d", FrameSamples, len(s))
	}
	for i, v := range s {
		if v != 0 {
			t.Fatalf("sample %d: expected silence, got %d", i, v)
		}
	}
}
