package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags an error with a category the trigger layer can translate into a
// transport-appropriate response (an HTTP status, or simply a logged-and-
// dropped message for fire-and-forget transports).
type Kind string

const (
	KindUnknown              Kind = "unknown"
	KindDatabase             Kind = "database"
	KindCommunication        Kind = "communication"
	KindEntityDoesNotExist   Kind = "entity-does-not-exist"
	KindContractInvalid      Kind = "contract-invalid"
	KindServerError          Kind = "server-error"
	KindLimitExceeded        Kind = "limit-exceeded"
	KindStatusConflict       Kind = "status-conflict"
	KindDuplicateName        Kind = "duplicate-name"
	KindInvalidID            Kind = "invalid-id"
	KindServiceUnavailable   Kind = "service-unavailable"
	KindNotAllowed           Kind = "not-allowed"
	KindServiceLocked        Kind = "service-locked"
	KindNotImplemented       Kind = "not-implemented"
	KindRangeNotSatisfiable  Kind = "range-not-satisfiable"
	KindIOError              Kind = "io-error"

	// KindPipelineExecution tags a transform-function failure raised by
	// the pipeline runtime. It sits outside the general error-kind table:
	// the runtime always maps it to HTTP 422 regardless of the wrapped
	// cause's own kind.
	KindPipelineExecution Kind = "pipeline-execution"
)

// AppError is the structured error type returned across package boundaries.
// It wraps an optional cause while preserving a stable Kind for HTTP/log
// translation.
type AppError struct {
	kind    Kind
	message string
	cause   error
}

// New creates an AppError with no wrapped cause.
func New(kind Kind, message string) *AppError {
	return &AppError{kind: kind, message: message}
}

// Wrap creates an AppError of the given kind around a lower-level cause.
// kind is always applied as given, even when cause is itself an *AppError;
// call WrapKeepKind to preserve the inner kind instead.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{kind: kind, message: message, cause: cause}
}

// WrapKeepKind wraps cause, preserving its Kind when cause is itself an
// *AppError; otherwise it falls back to KindUnknown.
func WrapKeepKind(message string, cause error) *AppError {
	k := KindUnknown
	var ae *AppError
	if errors.As(cause, &ae) {
		k = ae.kind
	}
	return &AppError{kind: k, message: message, cause: cause}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// KindOf extracts the Kind tag from err. It returns the empty Kind when err
// is nil and KindUnknown when err is not an *AppError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindUnknown
}

// ToHTTPStatus maps an error's Kind to the HTTP status code the HTTP
// trigger and admin REST surface return for it.
func ToHTTPStatus(err error) int {
	switch KindOf(err) {
	case KindPipelineExecution:
		return http.StatusUnprocessableEntity
	case KindEntityDoesNotExist:
		return http.StatusNotFound
	case KindContractInvalid:
		return http.StatusBadRequest
	case KindStatusConflict:
		return http.StatusConflict
	case KindDuplicateName:
		return http.StatusConflict
	case KindInvalidID:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindServiceLocked:
		return http.StatusLocked
	case KindNotAllowed:
		return http.StatusMethodNotAllowed
	case KindNotImplemented:
		return http.StatusNotImplemented
	case KindRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case KindLimitExceeded:
		return http.StatusTooManyRequests
	case KindIOError, KindDatabase, KindCommunication, KindServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewPipelineExecutionError wraps a transform function failure; it always
// maps to HTTP 422.
func NewPipelineExecutionError(pipelineID string, cause error) *AppError {
	return Wrap(KindPipelineExecution, fmt.Sprintf("pipeline %q execution failed", pipelineID), cause)
}
