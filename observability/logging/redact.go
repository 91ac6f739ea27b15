package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in logs.
const RedactedValue = "[REDACTED]"

// redactionAllowlist names attributes that never carry secrets.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"component": {},
	"op":        {},
	"loanid":    {},
	"contract":  {},
	"address":   {},
	"requestid": {},
}

// IsAllowlisted reports whether key is exempt from redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue redacts non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute that redacts value unless key is
// allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// Fingerprint keeps the last four characters of a secret so operators can
// tell keys apart without exposing them.
func Fingerprint(secret string) string {
	secret = strings.TrimSpace(secret)
	if len(secret) <= 4 {
		return MaskValue(secret)
	}
	return "..." + secret[len(secret)-4:]
}
