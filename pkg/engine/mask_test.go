package engine

import (
	"strings"
	"testing"
)

func TestMaskSecret_PreservesEdgesOnly(t *testing.T) {
	secret := "sk-proj-abcdefghijklmnopqrstuvwxyz0123"
	masked := MaskSecret(secret)

	if !strings.HasPrefix(masked, secret[:7]) {
		t.Fatalf("masked=%q, want prefix %q", masked, secret[:7])
	}
	if !strings.HasSuffix(masked, secret[len(secret)-4:]) {
		t.Fatalf("masked=%q, want suffix %q", masked, secret[len(secret)-4:])
	}

	// No interior run of the secret (length >= 8) may survive masking.
	interior := secret[7 : len(secret)-4]
	for i := 0; i+8 <= len(interior); i++ {
		if strings.Contains(masked, interior[i:i+8]) {
			t.Fatalf("masked=%q leaks interior substring %q", masked, interior[i:i+8])
		}
	}
}

func TestMaskSecret_ShortValuesFullyRedacted(t *testing.T) {
	for _, secret := range []string{"", "abc", "abcdefghijk"} {
		if got := MaskSecret(secret); got != "..." {
			t.Fatalf("MaskSecret(%q)=%q, want full redaction", secret, got)
		}
	}
}

func TestMaskSecretIn_ReplacesEveryOccurrence(t *testing.T) {
	secret := "sk-live-0123456789abcdef"
	text := "bad key " + secret + " rejected; retry with " + secret
	got := MaskSecretIn(text, secret)
	if strings.Contains(got, secret) {
		t.Fatalf("masked text still contains secret: %q", got)
	}
	if !strings.Contains(got, MaskSecret(secret)) {
		t.Fatalf("masked text missing masked form: %q", got)
	}
}

func TestMaskSecretIn_NoSecretNoChange(t *testing.T) {
	if got := MaskSecretIn("plain message", ""); got != "plain message" {
		t.Fatalf("got %q, want unchanged", got)
	}
}
