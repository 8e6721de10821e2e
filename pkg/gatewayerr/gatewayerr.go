// Package gatewayerr defines the Error Envelope used by every provider
// adapter and the retry/circuit-breaker layer (spec §3, §7).
//
// Adapters never retry internally; they translate a provider's HTTP status
// or wire-level error into one of these envelopes and return it. The retry
// layer classifies envelopes by Kind to decide whether to retry.
package gatewayerr

import (
	"errors"
	"fmt"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// Error is the stable, typed error envelope carried across the gateway.
// Message is a human-readable, stable string (spec §7 gives examples);
// ProviderCode and HTTPStatus are optional provider-reported detail.
type Error struct {
	Kind         coretypes.ErrorKind
	Message      string
	ProviderCode string
	HTTPStatus   int
	IsRetryable  bool
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is against a sentinel *Error that only sets Kind,
// matching on Kind alone — this lets callers write
// errors.Is(err, &gatewayerr.Error{Kind: coretypes.ErrAuth}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error with the given kind/message and the retryability
// implied by kind (see IsRetryableKind).
func New(kind coretypes.ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, IsRetryable: IsRetryableKind(kind)}
}

// Wrap constructs an Error that also carries the underlying cause.
func Wrap(kind coretypes.ErrorKind, message string, cause error) *Error {
	e := New(kind, message)
	e.Cause = cause
	return e
}

// IsRetryableKind reports whether kind is, in the abstract, ever retryable.
// The concrete decision additionally consults the per-provider RetryPolicy
// (see pkg/resilience), which can disable retrying specific kinds even when
// this returns true.
func IsRetryableKind(kind coretypes.ErrorKind) bool {
	switch kind {
	case coretypes.ErrTimeout, coretypes.ErrNetwork, coretypes.ErrRateLimit, coretypes.ErrOverloaded:
		return true
	case coretypes.ErrAuth, coretypes.ErrModelNotFound, coretypes.ErrContentFilter,
		coretypes.ErrContextLength, coretypes.ErrInvalidRequest, coretypes.ErrQuota,
		coretypes.ErrNotInitialized, coretypes.ErrUnknown:
		return false
	default:
		return false
	}
}

// FromHTTPStatus maps an HTTP status code to an ErrorKind per the table in
// spec §4.5: 200->Ok(nil), 401/403->Auth, 404->ModelNotFound,
// 413->ContextLength, 429->RateLimit, 5xx->Overloaded, other->Unknown.
func FromHTTPStatus(status int, message string) *Error {
	switch {
	case status == 200:
		return nil
	case status == 401 || status == 403:
		return New(coretypes.ErrAuth, orDefault(message, "API key invalid or expired"))
	case status == 404:
		return New(coretypes.ErrModelNotFound, orDefault(message, "Model not found"))
	case status == 413:
		return New(coretypes.ErrContextLength, orDefault(message, "Input too long for this model"))
	case status == 429:
		return New(coretypes.ErrRateLimit, orDefault(message, "Rate limit exceeded — retrying"))
	case status >= 500 && status < 600:
		return New(coretypes.ErrOverloaded, orDefault(message, "Provider overloaded, please retry"))
	default:
		return New(coretypes.ErrUnknown, orDefault(message, "Unknown provider error"))
	}
}

func orDefault(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

// Stable, human-readable messages for common kinds (spec §7 examples).
var stableMessages = map[coretypes.ErrorKind]string{
	coretypes.ErrAuth:           "API key invalid or expired",
	coretypes.ErrRateLimit:      "Rate limit exceeded — retrying",
	coretypes.ErrContextLength:  "Input too long for this model",
	coretypes.ErrModelNotFound:  "Model not found",
	coretypes.ErrNetwork:        "Network error — check your internet connection",
	coretypes.ErrTimeout:        "Request timed out",
	coretypes.ErrOverloaded:     "Provider is temporarily overloaded",
	coretypes.ErrContentFilter:  "Content was blocked by the provider's safety filter",
	coretypes.ErrQuota:         "Usage quota exceeded",
	coretypes.ErrInvalidRequest: "Invalid request",
	coretypes.ErrNotInitialized: "Provider not initialized",
	coretypes.ErrUnknown:        "Unknown error",
}

// StableMessage returns the canonical human-readable message for kind.
func StableMessage(kind coretypes.ErrorKind) string {
	if m, ok := stableMessages[kind]; ok {
		return m
	}
	return "Unknown error"
}
