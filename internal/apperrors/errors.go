package apperrors

import (
	"errors"
	"net/http"
)

// Categories. Handlers map these to status codes; domain packages wrap them.
var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
)

// CustomError carries a user-facing message on top of a category sentinel.
type CustomError struct {
	Err     error
	Message string
	Details map[string]string
}

func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *CustomError) Unwrap() error { return e.Err }

// WithDetails attaches per-field details, e.g. validation messages.
func (e *CustomError) WithDetails(details map[string]string) *CustomError {
	e.Details = details
	return e
}

func NewNotFound(message string) *CustomError {
	return &CustomError{Err: ErrResourceNotFound, Message: message}
}

func NewValidation(message string) *CustomError {
	return &CustomError{Err: ErrValidationFailed, Message: message}
}

func NewUnauthenticated(message string) *CustomError {
	return &CustomError{Err: ErrUnauthenticated, Message: message}
}

func NewForbidden(message string) *CustomError {
	return &CustomError{Err: ErrPermissionDenied, Message: message}
}

func NewConflict(message string) *CustomError {
	return &CustomError{Err: ErrConflict, Message: message}
}

// HTTPStatus returns the status code for err's category, 500 when it has none.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what a client may see for err. Uncategorised errors get a
// generic message so internals never leak.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Error()
	}
	return err.Error()
}

// Details returns the field details of the first CustomError in err's chain.
func Details(err error) map[string]string {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Details
	}
	return nil
}
