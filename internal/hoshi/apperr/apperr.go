// Package apperr defines the error taxonomy shared by every Hoshi component.
//
// Expected outcomes (permission, throttling, bad input, validation) are
// replied to the user verbatim and never logged as errors. Storage and
// backend failures are unexpected: the caller logs the wrapped cause and the
// user only sees a bounded, generic message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindRateLimited
	KindUnsupportedInput
	KindPayloadTooLarge
	KindValidation
	KindStorage
	KindBackend
)

// String returns the machine-readable kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindRateLimited:
		return "rate_limited"
	case KindUnsupportedInput:
		return "unsupported_input"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Any *Error of the same kind matches its sentinel.
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied, Msg: "⛔ You don't have permission to do this."}
	ErrRateLimited      = &Error{Kind: KindRateLimited, Msg: "⏳ Slow down a little and try again in a moment."}
	ErrUnsupportedInput = &Error{Kind: KindUnsupportedInput, Msg: "I understand only text and images."}
	ErrPayloadTooLarge  = &Error{Kind: KindPayloadTooLarge, Msg: "📦 That file is too large."}
	ErrValidation       = &Error{Kind: KindValidation, Msg: "Invalid input."}
	ErrStorage          = &Error{Kind: KindStorage, Msg: "⚠️ Internal storage error. Please try again later."}
	ErrBackend          = &Error{Kind: KindBackend, Msg: "⚠️ The AI backend failed. Please try again later."}
)

const genericMessage = "⚠️ Something went wrong. Please try again later."

// Error is a classified error. Msg is safe to show to the user; Err holds
// the underlying cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind with a user-facing message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Validation returns a ValidationError with the given reason.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps an underlying storage failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Err: fmt.Errorf("%s: %w", op, err)}
}

// Backend wraps a completion or image backend failure. detail is a short,
// already-redacted and HTML-escaped snippet that may be shown to the user.
func Backend(detail string, err error) *Error {
	return &Error{Kind: KindBackend, Msg: detail, Err: err}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Expected reports whether err is a user-facing outcome rather than a fault.
func Expected(err error) bool {
	switch KindOf(err) {
	case KindPermissionDenied, KindRateLimited, KindUnsupportedInput, KindPayloadTooLarge, KindValidation:
		return true
	}
	return false
}

// UserMessage renders err as reply text. Unexpected errors never leak their
// cause; backend errors may carry a bounded diagnostic snippet.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return genericMessage
	}
	switch e.Kind {
	case KindStorage:
		return ErrStorage.Msg
	case KindBackend:
		if e.Msg != "" {
			return ErrBackend.Msg + "\n<code>" + e.Msg + "</code>"
		}
		return ErrBackend.Msg
	}
	if e.Msg != "" {
		return e.Msg
	}
	switch e.Kind {
	case KindPermissionDenied:
		return ErrPermissionDenied.Msg
	case KindRateLimited:
		return ErrRateLimited.Msg
	case KindUnsupportedInput:
		return ErrUnsupportedInput.Msg
	case KindPayloadTooLarge:
		return ErrPayloadTooLarge.Msg
	}
	return ErrValidation.Msg
}
