// Package errors defines the typed failures that cross the service boundary.
// Every Error carries a translation key so handlers can localize the message
// shown to the user.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	TypeValidation ErrorType = "validation"
	TypeTooLarge   ErrorType = "too_large"
	TypeNotFound   ErrorType = "not_found"
	TypeExpired    ErrorType = "expired"
	TypeMerge      ErrorType = "merge"
	TypeInternal   ErrorType = "internal"
)

// Error is a structured failure. Message is the English fallback used when
// no translation exists for Key.
type Error struct {
	Type    ErrorType
	Key     string
	Message string
	Data    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Type, so callers can write
// errors.Is(err, errors.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Key == "" && t.Type == e.Type
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeTooLarge:
		return http.StatusRequestEntityTooLarge
	case TypeNotFound:
		return http.StatusNotFound
	case TypeExpired:
		return http.StatusGone
	case TypeMerge:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// With attaches an interpolation value (chainable).
func (e *Error) With(key, value string) *Error {
	if e.Data == nil {
		e.Data = make(map[string]string)
	}
	e.Data[key] = value
	return e
}

// Sentinels for errors.Is comparisons. They match by Type only.
var (
	ErrValidation = &Error{Type: TypeValidation}
	ErrTooLarge   = &Error{Type: TypeTooLarge}
	ErrNotFound   = &Error{Type: TypeNotFound}
	ErrExpired    = &Error{Type: TypeExpired}
	ErrMerge      = &Error{Type: TypeMerge}
	ErrInternal   = &Error{Type: TypeInternal}
)

func Validation(key, message string) *Error {
	return &Error{Type: TypeValidation, Key: key, Message: message}
}

func TooLarge(key, message string) *Error {
	return &Error{Type: TypeTooLarge, Key: key, Message: message}
}

func NotFound(key, message string) *Error {
	return &Error{Type: TypeNotFound, Key: key, Message: message}
}

func Expired(key, message string) *Error {
	return &Error{Type: TypeExpired, Key: key, Message: message}
}

func Merge(key, message string, cause error) *Error {
	return &Error{Type: TypeMerge, Key: key, Message: message, Cause: cause}
}

// IO wraps a storage or filesystem failure.
func IO(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Key: "io_failure", Message: message, Cause: cause}
}

func Internal(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Key: "internal_error", Message: message, Cause: cause}
}

// As converts any error into an *Error, wrapping unknown ones as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}
