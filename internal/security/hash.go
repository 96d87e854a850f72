package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AccountHash returns the pseudonymous account identifier for an email:
// SHA-256 of the trimmed, lowercased address. The raw email is never sent
// to the trial service.
func AccountHash(email string) string {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail trims whitespace and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailsMatch compares two emails ignoring case and surrounding whitespace
func EmailsMatch(a, b string) bool {
	return NormalizeEmail(a) != "" && NormalizeEmail(a) == NormalizeEmail(b)
}

// MaskLicenseKey masks a license key for logs, keeping four characters at
// each end.
func MaskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// KeyHint returns the display suffix of a license key (last four characters)
func KeyHint(key string) string {
	if len(key) < 4 {
		return key
	}
	return key[len(key)-4:]
}

// MaskEmail masks an email address for logs while preserving the domain
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.Index(email, "@")
	if at == -1 {
		return "****"
	}

	username := email[:at]
	domain := email[at:]

	if len(username) <= 2 {
		return "**" + domain
	}

	return username[:1] + "****" + username[len(username)-1:] + domain
}
