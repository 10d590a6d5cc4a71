// Package apperror defines the typed application errors returned by certify services.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
)

// Stable machine-readable error codes.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeFindingsCreate      = "FINDINGS_CREATE_ERROR"
	CodeFindingsQuery       = "FINDINGS_QUERY_ERROR"
	CodeFindingsReview      = "FINDINGS_REVIEW_ERROR"
	CodeFindingsDelete      = "FINDINGS_DELETE_ERROR"
	CodeAnalysisStart       = "ANALYSIS_START_ERROR"
	CodeAnalysisStatus      = "ANALYSIS_STATUS_ERROR"
	CodeAnalysisQueueFull   = "ANALYSIS_QUEUE_FULL"
	CodeAnalysisUnavailable = "ANALYSIS_UNAVAILABLE"
)

// Error is an application error with a stable code.
type Error struct {
	Err     error
	Code    string
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		if e.Code == CodeAnalysisQueueFull || e.Code == CodeAnalysisUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

// NotFound returns an error for a missing or cross-tenant entity.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

// Validation returns an error for an unmet precondition or bad input.
func Validation(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// Conflict returns an error for a request that clashes with current state.
func Conflict(format string, args ...any) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal returns an internal error with the given code.
func Internal(code, message string, err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps err as an internal error with code. Errors that already carry
// an application code are returned unchanged.
func Wrap(err error, code, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Internal(code, message, err)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an application error of kind k.
func IsKind(err error, k Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == k
}

// IsNotFound reports whether err is a NotFound application error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsValidation reports whether err is a Validation application error.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsConflict reports whether err is a Conflict application error.
func IsConflict(err error) bool { return IsKind(err, KindConflict) }

// HasCode reports whether err carries an application error with code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
