// Package apperr defines the closed set of failure kinds the API exposes and
// converts them into the stable JSON error body at the HTTP boundary. Handlers
// and middleware return *Error values; anything else reaching the boundary is
// treated as an internal failure and reported without detail.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates failure categories. Each kind maps to exactly one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindResetToken
	KindValidation
	KindNotFound
	KindConflict
	KindMethodNotAllowed
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindResetToken:
		return "reset_token"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindAuthentication, KindResetToken:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Tag is the machine-readable value of the
// "error" field in the response body; Message is safe to show to clients.
// Cause is kept for server-side logging only and is never serialized.
type Error struct {
	Kind    Kind
	Tag     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Tag, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Tag, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Body is the wire shape shared by every authentication, authorization and
// validation failure.
type Body struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Body renders the error for the client.
func (e *Error) Body() Body {
	return Body{Status: e.Kind.Status(), Message: e.Message, Error: e.Tag}
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func Authentication(tag, msg string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Tag: tag, Message: msg, Cause: cause}
}

// Forbidden is the authorization failure: the identity is valid but lacks rights.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindAuthorization, Tag: "forbidden", Message: msg}
}

func ResetToken(tag, msg string, cause error) *Error {
	return &Error{Kind: KindResetToken, Tag: tag, Message: msg, Cause: cause}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Tag: "validation_failed", Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Tag: "not_found", Message: msg}
}

func Conflict(tag, msg string) *Error {
	return &Error{Kind: KindConflict, Tag: tag, Message: msg}
}

func MethodNotAllowed() *Error {
	return &Error{Kind: KindMethodNotAllowed, Tag: "method_not_allowed", Message: "method not allowed"}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Tag: "too_many_requests", Message: "rate limit exceeded"}
}

// Internal wraps an unexpected failure. The client only ever sees a generic
// message; cause goes to the log.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Tag: "internal_error", Message: "unexpected error", Cause: cause}
}
