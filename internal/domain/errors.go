package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")
var ErrNotUnique = errors.New("record not unique")
var ErrInvalidUsername = errors.New("invalid username")

// ErrInvalidCredentials covers every authentication failure that must stay
// indistinguishable from a wrong password, including recoverable remote
// errors such as an unknown user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ServiceErrorKind classifies failures reported by the remote authentication service.
type ServiceErrorKind string

const (
	ServiceErrNotFound     ServiceErrorKind = "not-found"
	ServiceErrConflict     ServiceErrorKind = "conflict"
	ServiceErrUnauthorized ServiceErrorKind = "unauthorized"
	ServiceErrBadRequest   ServiceErrorKind = "bad-request"
	ServiceErrServerError  ServiceErrorKind = "server-error"
	ServiceErrUnknown      ServiceErrorKind = "unknown"
)

// ServiceError is the single error type used for all remote authentication
// service failures. It carries the original status code and a stable message
// key so that callers can render a localized error page without inspecting
// the raw response.
type ServiceError struct {
	Kind       ServiceErrorKind
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("authentication service error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// MessageKey returns a stable identifier for user-visible error messages.
// The host platform maps these keys to localized texts.
func (e *ServiceError) MessageKey() string {
	return "restauth-" + string(e.Kind)
}

// IsRecoverable returns true if the error only means that a resource is
// absent. Such errors are usually converted to a negative answer instead of
// being surfaced to the user.
func (e *ServiceError) IsRecoverable() bool {
	return e.Kind == ServiceErrNotFound
}

func (e *ServiceError) Is(target error) bool {
	if target == ErrNotFound {
		return e.Kind == ServiceErrNotFound
	}
	if target == ErrNotUnique {
		return e.Kind == ServiceErrConflict
	}
	var svcErr *ServiceError
	if errors.As(target, &svcErr) {
		return e.Kind == svcErr.Kind
	}
	return false
}

// NewServiceError wraps a remote status into a ServiceError.
func NewServiceError(kind ServiceErrorKind, statusCode int, message string) *ServiceError {
	return &ServiceError{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
	}
}

// IsServiceUnavailable returns true if the given error indicates that the
// remote authentication service could not fulfill the request due to an
// infrastructure problem. Login attempts failing with such errors must be
// presented as "service unavailable, try again later", never as a stack trace.
func IsServiceUnavailable(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	switch svcErr.Kind {
	case ServiceErrUnauthorized, ServiceErrBadRequest, ServiceErrServerError, ServiceErrUnknown:
		return true
	default:
		return false
	}
}
