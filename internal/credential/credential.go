// Package credential validates, masks and redacts Devin API keys.
//
// Everything here is a pure function over strings. Mask is for diagnostic
// output only and Sanitize must be applied to any error text before it is
// logged or shown.
package credential

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidCredential is returned when an API key does not have the shape
// the Devin API issues.
var ErrInvalidCredential = errors.New("invalid credential")

const (
	// KeyPrefix is the prefix every Devin API key carries.
	KeyPrefix = "apk_"

	// MinKeyLength is the shortest key (prefix included) accepted by Validate.
	MinKeyLength = 20

	// Masked replaces values too short to partially reveal.
	Masked = "***"

	// Redacted replaces secrets found by Sanitize.
	Redacted = "[REDACTED]"

	maskThreshold = 8
	maskVisible   = 4
)

var (
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/=]+`)
	keyValPattern = regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|x-api-key|token)(["']?\s*[:=]\s*["']?)[^\s"',;&}]+`)
	rawKeyPattern = regexp.MustCompile(`\b` + regexp.QuoteMeta(KeyPrefix) + `[A-Za-z0-9_\-]{4,}`)
)

// Validate reports whether key looks like a Devin API key: non-empty,
// prefixed with KeyPrefix and at least MinKeyLength characters long.
func Validate(key string) bool {
	if key == "" || len(key) < MinKeyLength {
		return false
	}
	if strings.TrimSpace(key) != key {
		return false
	}
	return strings.HasPrefix(key, KeyPrefix)
}

// Check returns ErrInvalidCredential (wrapped with the masked key) when
// Validate fails.
func Check(key string) error {
	if Validate(key) {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%w: API key is empty", ErrInvalidCredential)
	}
	return fmt.Errorf("%w: API key %s must start with %q and be at least %d characters",
		ErrInvalidCredential, Mask(key), KeyPrefix, MinKeyLength)
}

// Mask hides a secret for logging. Values shorter than eight characters
// become Masked. Longer values keep up to four characters on each end,
// and at most half of the value is ever shown.
func Mask(value string) string {
	if len(value) < maskThreshold {
		return Masked
	}
	visible := min(len(value)/4, maskVisible)
	return value[:visible] + "..." + value[len(value)-visible:]
}

// Sanitize redacts bearer tokens, api_key=/apikey: style pairs and raw
// Devin keys from text. Matching is case-insensitive.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	out := bearerPattern.ReplaceAllString(text, "Bearer "+Redacted)
	out = keyValPattern.ReplaceAllString(out, "${1}${2}"+Redacted)
	out = rawKeyPattern.ReplaceAllString(out, Redacted)
	return out
}

// SanitizeError returns the sanitized message of err, or "" for nil.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}

// SanitizeValue sanitizes an arbitrary value. Errors and strings are
// handled the same way; anything else is formatted with %v first.
func SanitizeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case error:
		return SanitizeError(val)
	case string:
		return Sanitize(val)
	case fmt.Stringer:
		return Sanitize(val.String())
	default:
		return Sanitize(fmt.Sprint(val))
	}
}
