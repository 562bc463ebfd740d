package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies one failure classification for an extraction attempt
type Kind string

const (
	KindInvalidURL          Kind = "INVALID_URL"
	KindUnsupportedPlatform Kind = "UNSUPPORTED_PLATFORM"
	KindCookieRequired      Kind = "COOKIE_REQUIRED"
	KindCookieExpired       Kind = "COOKIE_EXPIRED"
	KindCookieInvalid       Kind = "COOKIE_INVALID"
	KindCookieBanned        Kind = "COOKIE_BANNED"
	KindNotFound            Kind = "NOT_FOUND"
	KindPrivateContent      Kind = "PRIVATE_CONTENT"
	KindAgeRestricted       Kind = "AGE_RESTRICTED"
	KindNoMedia             Kind = "NO_MEDIA"
	KindDeleted             Kind = "DELETED"
	KindContentRemoved      Kind = "CONTENT_REMOVED"
	KindGeoBlocked          Kind = "GEO_BLOCKED"
	KindTimeout             Kind = "TIMEOUT"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindBlocked             Kind = "BLOCKED"
	KindNetwork             Kind = "NETWORK_ERROR"
	KindAPI                 Kind = "API_ERROR"
	KindParse               Kind = "PARSE_ERROR"
	KindCheckpointRequired  Kind = "CHECKPOINT_REQUIRED"
	KindUnknown             Kind = "UNKNOWN"
)

// Error represents an extraction error with classification information
type Error struct {
	Kind    Kind
	Message string
	Code    int // HTTP status code if one was involved, 0 otherwise
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an Error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCode attaches an HTTP status code to the error
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// KindOf extracts the classification from anywhere in an error chain.
// Errors outside the taxonomy classify as UNKNOWN.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether an immediate retry with the same inputs
// could plausibly succeed
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTimeout, KindRateLimited, KindNetwork, KindAPI, KindUnknown:
		return true
	default:
		return false
	}
}

// RequiresCredential reports whether supplying or refreshing a credential
// could change the outcome
func RequiresCredential(kind Kind) bool {
	switch kind {
	case KindCookieRequired, KindAgeRestricted, KindPrivateContent:
		return true
	default:
		return false
	}
}

// CredentialRejected reports whether the provider explicitly rejected the
// supplied credential. The pool has already pulled that credential from
// rotation, so one retry with an alternate credential is worthwhile even
// though refreshing a credential is not what the kind itself asks for.
func CredentialRejected(kind Kind) bool {
	switch kind {
	case KindCookieExpired, KindCookieInvalid, KindCookieBanned:
		return true
	default:
		return false
	}
}

// Retryable is the method form of IsRetryable
func (e *Error) Retryable() bool {
	return IsRetryable(e.Kind)
}

// RequiresCredential is the method form of the package-level predicate
func (e *Error) RequiresCredential() bool {
	return RequiresCredential(e.Kind)
}

// FromStatusCode maps an HTTP status code to a taxonomy kind
func FromStatusCode(code int) Kind {
	switch code {
	case 0:
		return KindNetwork
	case 401:
		return KindCookieRequired
	case 403:
		return KindBlocked
	case 404, 410:
		return KindNotFound
	case 429:
		return KindRateLimited
	case 451:
		return KindGeoBlocked
	}
	if code >= 500 {
		return KindAPI
	}
	return KindUnknown
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	return IsRetryable(FromStatusCode(statusCode))
}
