package devin

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the transport. Inspect with errors.Is.
var (
	// ErrAuthentication is returned on HTTP 401 or 403.
	ErrAuthentication = errors.New("authentication failed")
	// ErrInsufficientCredits is returned on HTTP 402 or a credit-exhaustion message.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrNetwork is returned on connection-level failures.
	ErrNetwork = errors.New("network error")
	// ErrTransientService is returned when 429/5xx responses exhaust the retries.
	ErrTransientService = errors.New("service unavailable")
	// ErrRequestFailed covers any other non-2xx response or malformed body.
	ErrRequestFailed = errors.New("request failed")
)

// ErrAgentTerminated is returned by Run after Terminate.
var ErrAgentTerminated = errors.New("devin agent terminated")

// APIError is the typed outcome of a failed transport call.
type APIError struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Op names the transport operation (e.g. "create session").
	Op string

	// StatusCode is the HTTP status, or 0 for network failures.
	StatusCode int

	// Code is the low-level network cause (ECONNREFUSED, ETIMEDOUT, ...).
	Code string

	// Message is the sanitized service-reported or transport message.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "devin: %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NormalizationError reports structured output that could not be converted.
type NormalizationError struct {
	// Entry is the output entry type, or empty for the top-level payload.
	Entry string
	Err   error
}

func (e *NormalizationError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("devin: normalize output: %v", e.Err)
	}
	return fmt.Sprintf("devin: normalize %s entry: %v", e.Entry, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient service failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientService)
}

// DescribeError renders err as the prefixed notice shown to users.
func DescribeError(err error) string {
	var apiErr *APIError
	var normErr *NormalizationError
	switch {
	case errors.As(err, &apiErr):
		detail := apiErr.Message
		if detail == "" {
			detail = apiErr.Op
		}
		switch {
		case errors.Is(apiErr.Kind, ErrAuthentication):
			return "Authentication failed: " + detail + ". Check DEVIN_API_KEY."
		case errors.Is(apiErr.Kind, ErrInsufficientCredits):
			return "Insufficient credits: " + detail + ". Add credits to your Devin account."
		case errors.Is(apiErr.Kind, ErrNetwork):
			if apiErr.Code != "" {
				return fmt.Sprintf("Network error (%s): %s", apiErr.Code, detail)
			}
			return "Network error: " + detail
		case errors.Is(apiErr.Kind, ErrTransientService):
			return "Devin service unavailable: " + detail
		default:
			return "Devin request failed: " + detail
		}
	case errors.As(err, &normErr):
		return "Failed to process Devin output: " + normErr.Err.Error()
	case errors.Is(err, ErrAgentTerminated):
		return "Devin agent has been terminated"
	case err == nil:
		return ""
	default:
		return "Devin error: " + err.Error()
	}
}

// isCreditMessage reports whether a service message signals exhausted credits.
func isCreditMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "insufficient credit") ||
		strings.Contains(lower, "out of credits") ||
		strings.Contains(lower, "credit limit") ||
		strings.Contains(lower, "no credits")
}
