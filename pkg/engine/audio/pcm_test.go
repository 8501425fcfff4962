package audio

import (
	"bytes"
	"testing"
)

func TestRoundTrip_ZeroOneAndManyChunks(t *testing.T) {
	chunks := [][]byte{
		{},
		{0x01, 0x02},
		{0x01, 0x02, 0x03, 0x04, 0xff, 0x7f, 0x00, 0x80},
	}

	// Zero chunks: nothing to encode, nothing comes back.
	var combined []byte
	for _, chunk := range chunks[1:] {
		combined = append(combined, chunk...)
	}

	var decoded []byte
	for _, chunk := range chunks[1:] {
		got, err := DecodeChunk(EncodeChunk(chunk))
		if err != nil {
			t.Fatalf("round trip failed: %v", err)
		}
		decoded = append(decoded, got...)
	}
	if !bytes.Equal(decoded, combined) {
		t.Fatalf("round trip mismatch: got %x, want %x", decoded, combined)
	}
}

func TestDecodeChunk_RejectsOddLength(t *testing.T) {
	encoded := EncodeChunk([]byte{0x01, 0x02, 0x03})
	if _, err := DecodeChunk(encoded); err != ErrMisaligned {
		t.Fatalf("err=%v, want ErrMisaligned", err)
	}
}

func TestDecodeChunk_RejectsInvalidBase64(t *testing.T) {
	if _, err := DecodeChunk("not base64!!"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidateChunk(t *testing.T) {
	if err := ValidateChunk(nil); err == nil {
		t.Fatalf("empty chunk accepted")
	}
	if err := ValidateChunk([]byte{1}); err != ErrMisaligned {
		t.Fatalf("err=%v, want ErrMisaligned", err)
	}
	if err := ValidateChunk([]byte{1, 2}); err != nil {
		t.Fatalf("aligned chunk rejected: %v", err)
	}
}

func TestDurationMS(t *testing.T) {
	// One second of 24kHz mono s16le is 48000 bytes.
	if got := DurationMS(48000); got != 1000 {
		t.Fatalf("DurationMS(48000)=%d, want 1000", got)
	}
	if got := DurationMS(2400); got != 50 {
		t.Fatalf("DurationMS(2400)=%d, want 50", got)
	}
}
