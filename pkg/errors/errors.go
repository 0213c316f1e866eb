package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors used with errors.Is across package boundaries.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidItem       = errors.New("invalid line item")
	ErrItemLocked        = errors.New("item locked")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStore             = errors.New("store error")
	ErrServiceUnavail    = errors.New("service unavailable")
)

// AppError is a structured application error carrying a stable code and an
// HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidItem creates a 400 error for a value that does not satisfy the
// line-item contract. This is a programmer error and is never retried.
func InvalidItem(message string) *AppError {
	return &AppError{
		Code:    "INVALID_ITEM",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidItem,
	}
}

// ItemLocked creates a 422 error for quantity edits on a locked line item.
// Locked items may only be removed.
func ItemLocked(title string) *AppError {
	return &AppError{
		Code:    "ITEM_LOCKED",
		Message: fmt.Sprintf("unable to change quantity of %q", title),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrItemLocked,
	}
}

// InsufficientStock creates a 422 error carrying the item title so callers
// can surface a user-visible message.
func InsufficientStock(title string) *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("there are not enough %q in stock", title),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrInsufficientStock,
	}
}

// Conflict creates a 409 error, used for optimistic-concurrency failures.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Store wraps an underlying persistence failure. The caller decides retry
// policy; nothing is recovered locally.
func Store(err error) *AppError {
	return &AppError{
		Code:    "STORE_ERROR",
		Message: "a storage error occurred",
		Status:  http.StatusInternalServerError,
		Err:     fmt.Errorf("%w: %w", ErrStore, err),
	}
}

// ServiceUnavailable creates a 503 error for unreachable collaborators.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, ErrItemLocked), errors.Is(err, ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
