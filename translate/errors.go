package translate

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// ErrorKind is the closed classification of provider failures. The sync
// engine switches on the kind, never on message text.
type ErrorKind int

const (
	// KindOther covers failures with no special handling: the batch fails,
	// the sync continues.
	KindOther ErrorKind = iota
	// KindAuth is a missing or rejected credential. Fatal for the whole
	// sync call: no batch can succeed.
	KindAuth
	// KindRateLimit is throttling by the provider. The only retryable kind.
	KindRateLimit
	// KindInvalidResponse means the provider answered but the payload
	// could not be parsed into translations.
	KindInvalidResponse
	// KindUnavailable is a transport failure or 5xx from the provider.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate-limit"
	case KindInvalidResponse:
		return "invalid-response"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// APIError is a classified provider failure.
type APIError struct {
	// Kind is the failure class.
	Kind ErrorKind
	// Provider is the provider ID the failure came from.
	Provider string
	// Status is the HTTP status code, if any.
	Status int
	// Message is the provider's error text, truncated for logs.
	Message string
	// RetryAfter is the wait the provider asked for (rate limits only,
	// zero when the provider gave none).
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// KindOf extracts the error kind, defaulting to KindOther for errors
// that did not come from a provider call.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindOther
}

// IsRateLimit reports whether err is a retryable throttling failure.
func IsRateLimit(err error) bool { return KindOf(err) == KindRateLimit }

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// RetryAfter returns the provider-requested wait, or zero.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
