package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so predefined values work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registration admission taxonomy.
var (
	ErrNoActivePeriod      = New("NO_ACTIVE_PERIOD", http.StatusForbidden, "no active registration period for this course group")
	ErrNoActiveWindow      = New("NO_ACTIVE_WINDOW", http.StatusForbidden, "student has no open registration window")
	ErrProcessingFailed    = New("PROCESSING_FAILED", http.StatusServiceUnavailable, "registration processing failed")
	ErrProcessingTimeout   = New("PROCESSING_TIMEOUT", http.StatusGatewayTimeout, "processing attempt timed out")
	ErrClassFull           = New("CLASS_FULL", http.StatusConflict, "class is full")
	ErrScheduleConflict    = New("SCHEDULE_CONFLICT", http.StatusConflict, "proposed schedule conflicts with existing classes")
	ErrCreditLimitExceeded = New("CREDIT_LIMIT_EXCEEDED", http.StatusUnprocessableEntity, "credit limit exceeded")
	ErrPrerequisitesNotMet = New("PREREQUISITES_NOT_MET", http.StatusUnprocessableEntity, "prerequisites not met")
	ErrQueueStopped        = New("QUEUE_STOPPED", http.StatusServiceUnavailable, "admission queue stopped")
	ErrCanceled            = New("CANCELED", http.StatusConflict, "work item canceled before start")
	ErrWindowLimitExceeded = New("WINDOW_LIMIT_EXCEEDED", http.StatusConflict, "student already holds the maximum number of concurrent windows")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of err carrying the provided structured details.
func WithDetails(err *Error, details map[string]any) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	merged := make(map[string]any, len(err.Details)+len(details))
	for k, v := range err.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	clone.Details = merged
	return &clone
}

// HasCode reports whether any error in the chain carries the code of target.
func HasCode(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}
