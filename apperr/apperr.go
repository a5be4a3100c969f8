// Package apperr is the error taxonomy shared by the service and transport
// layers. Kinds are attached once at the service boundary and translated to
// an HTTP status or a failure event by the handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuthentication Kind = "AUTHENTICATION_FAILURE"
	KindAuthorization  Kind = "AUTHORIZATION_FAILURE"
	KindNotFound       Kind = "NOT_FOUND"
	KindValidation     Kind = "VALIDATION_FAILURE"
	KindDependency     Kind = "DEPENDENCY_FAILURE"
	KindStartup        Kind = "STARTUP_FAILURE"
	// KindBestEffort marks a failed side effect that must not fail the
	// operation that triggered it. It is logged and never returned.
	KindBestEffort Kind = "BEST_EFFORT"
)

// Error carries a kind, a caller-facing message and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

func Authentication(message string) *Error { return New(KindAuthentication, message) }
func Authorization(message string) *Error  { return New(KindAuthorization, message) }
func NotFound(resource string) *Error      { return New(KindNotFound, resource+" not found") }
func Validation(message string) *Error     { return New(KindValidation, message) }

// Dependency wraps a store, mail or queue failure. The message is what the
// caller sees; the cause is only logged.
func Dependency(err error, message string) *Error {
	return Wrap(err, KindDependency, message)
}

func BestEffort(err error, message string) *Error {
	return Wrap(err, KindBestEffort, message)
}

func Startup(err error, message string) *Error {
	return Wrap(err, KindStartup, message)
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err. Untyped errors count as dependency
// failures so they are never shown to callers verbatim.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindDependency
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage is the message safe to return to a caller.
func PublicMessage(err error) string {
	appErr, ok := As(err)
	if !ok || appErr.Kind == KindDependency {
		return "internal server error"
	}
	return appErr.Message
}

func Status(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
