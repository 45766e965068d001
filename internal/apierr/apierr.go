// Package apierr defines the transport-agnostic error taxonomy the core
// returns to the Orchestrator, which maps it onto HTTP status codes or WS
// error frames.
package apierr

import "fmt"

// Kind is one of the error categories from spec.md §7.
type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindHistoryPruned Kind = "history_pruned"
	KindRateLimited   Kind = "rate_limited"
	KindOTPRequired   Kind = "otp_required"
	KindInternal      Kind = "internal"
)

// Error is the single tagged error type shared by every core component.
// Validation errors of this type never indicate a partial mutation: the
// component contract is that state only changes after all checks pass.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithDetails(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func BadRequest(msg string) *Error    { return New(KindBadRequest, msg) }
func Unauthorized(msg string) *Error  { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error     { return New(KindForbidden, msg) }
func NotFound(msg string) *Error      { return New(KindNotFound, msg) }
func Conflict(msg string) *Error      { return New(KindConflict, msg) }
func HistoryPruned(msg string) *Error { return New(KindHistoryPruned, msg) }
func RateLimited(msg string) *Error   { return New(KindRateLimited, msg) }
func OTPRequired(msg string) *Error   { return New(KindOTPRequired, msg) }
func Internal(msg string) *Error      { return New(KindInternal, msg) }

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// KindOf returns the Kind of err, defaulting to internal for untagged errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code §7 assigns it.
func HTTPStatus(k Kind) int {
	switch k {
	case KindBadRequest:
		return 400
	case KindUnauthorized, KindOTPRequired:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindHistoryPruned:
		return 410
	case KindRateLimited:
		return 429
	default:
		return 500
	}
}
