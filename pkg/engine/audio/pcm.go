// Package audio holds the PCM16 wire-format helpers shared by the ingestion
// routes and the upstream connection. The engine speaks 16-bit signed
// little-endian PCM, mono, 24 kHz; chunks travel as base64 text on every
// transport that cannot carry raw bytes.
package audio

import (
	"encoding/base64"
	"fmt"
)

const (
	// SampleRate is the fixed engine sample rate in Hz.
	SampleRate = 24000
	// Channels is the fixed channel count (mono).
	Channels = 1
	// BytesPerSample is the width of one PCM16 sample.
	BytesPerSample = 2
)

// ErrMisaligned reports a chunk whose byte length breaks 16-bit sample
// alignment. Forwarding such a chunk would shift every later sample by one
// byte, so it is rejected outright rather than padded.
var ErrMisaligned = fmt.Errorf("pcm16 chunk length is not sample-aligned")

// ValidateChunk checks that a raw chunk is non-empty and sample-aligned.
func ValidateChunk(pcm []byte) error {
	if len(pcm) == 0 {
		return fmt.Errorf("pcm16 chunk is empty")
	}
	if len(pcm)%BytesPerSample != 0 {
		return ErrMisaligned
	}
	return nil
}

// EncodeChunk converts raw PCM16 bytes to their wire text form.
func EncodeChunk(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeChunk converts wire text back to raw PCM16 bytes, enforcing sample
// alignment so a truncated frame cannot silently desynchronize playback.
func DecodeChunk(encoded string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode pcm16 chunk: %w", err)
	}
	if len(pcm)%BytesPerSample != 0 {
		return nil, ErrMisaligned
	}
	return pcm, nil
}

// DurationMS returns the playback duration of a byte count at the engine's
// fixed format.
func DurationMS(nbytes int) int {
	bytesPerSecond := SampleRate * Channels * BytesPerSample
	return nbytes * 1000 / bytesPerSecond
}
