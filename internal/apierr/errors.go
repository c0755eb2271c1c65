// Package apierr classifies failures into the kinds the HTTP boundary
// knows how to report.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Forbidden
	Unauthorized
	TooManyRequests
)

// Status returns the HTTP status code reported for the kind.
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	case TooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Label returns the short error title used in response bodies.
func (k Kind) Label() string {
	switch k {
	case Validation:
		return "Validation Error"
	case NotFound:
		return "Resource Not Found"
	case Conflict:
		return "User Already Exists"
	case Forbidden:
		return "Access Denied"
	case Unauthorized:
		return "Unauthorized"
	case TooManyRequests:
		return "Too Many Requests"
	default:
		return "Server Error"
	}
}

func (k Kind) String() string {
	return k.Label()
}

// Error is a classified failure. Messages are safe to show to clients.
type Error struct {
	Kind     Kind
	Messages []string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case len(e.Messages) == 1:
		return e.Messages[0]
	case len(e.Messages) > 1:
		return fmt.Sprintf("%s: %v", e.Kind.Label(), e.Messages)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.Label()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Messages: []string{fmt.Sprintf(format, args...)}}
}

// ValidationErr reports one or more field constraint violations.
func ValidationErr(messages ...string) *Error {
	return &Error{Kind: Validation, Messages: messages}
}

func NotFoundf(format string, args ...any) *Error {
	return newf(NotFound, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newf(Conflict, format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return newf(Forbidden, format, args...)
}

func Unauthorizedf(format string, args ...any) *Error {
	return newf(Unauthorized, format, args...)
}

func TooManyRequestsf(format string, args ...any) *Error {
	return newf(TooManyRequests, format, args...)
}

// Wrap attaches a kind to an underlying error, keeping it for errors.Is.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Messages: []string{message}, Err: err}
}

// KindOf classifies err. Anything that is not an *Error is Internal.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return Internal
}

// Messages returns the client-facing messages for err. Unclassified
// errors report their own text.
func Messages(err error) []string {
	if err == nil {
		return []string{}
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && len(apiErr.Messages) > 0 {
		return apiErr.Messages
	}
	return []string{err.Error()}
}
