package engine

import "strings"

const (
	maskKeepPrefix = 7
	maskKeepSuffix = 4
	maskRedacted   = "..."
)

// MaskSecret redacts the interior of a credential, keeping the first 7 and
// last 4 characters so operators can still correlate keys across logs.
// Values too short to mask safely are redacted entirely.
func MaskSecret(secret string) string {
	if len(secret) < maskKeepPrefix+maskKeepSuffix+1 {
		return maskRedacted
	}
	return secret[:maskKeepPrefix] + maskRedacted + secret[len(secret)-maskKeepSuffix:]
}

// MaskSecretIn replaces every occurrence of secret inside text with its
// masked form. Upstream error bodies sometimes echo the Authorization header
// back, so this runs on every message the classifier surfaces.
func MaskSecretIn(text, secret string) string {
	if secret == "" || !strings.Contains(text, secret) {
		return text
	}
	return strings.ReplaceAll(text, secret, MaskSecret(secret))
}
