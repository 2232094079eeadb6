package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to callers.
const (
	CodeInvalidAmount      = "LED_001"
	CodeInsufficientCredit = "LED_002"
	CodeRatingOutOfRange   = "LED_003"
	CodeContention         = "LED_004"
	CodeNotFound           = "LED_005"
	CodeStorageFault       = "SYS_001"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// IsCode reports whether err is an *AppError carrying code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ---- Ledger Business Logic (LED) ----

// ErrInvalidAmount rejects non-positive or malformed amounts, and
// self-transfers.
func ErrInvalidAmount(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}

// ErrInsufficientCredit rejects a transfer that would push the sender
// below its credit floor.
func ErrInsufficientCredit() *AppError {
	return New(CodeInsufficientCredit, "Transfer would exceed credit limit", http.StatusPaymentRequired)
}

// ErrRatingOutOfRange rejects rating values outside the 1..5 scale.
func ErrRatingOutOfRange() *AppError {
	return New(CodeRatingOutOfRange, "Rating must be between 1 and 5", http.StatusBadRequest)
}

// ErrContention reports that an account lock could not be acquired in
// time. Safe to retry with the same idempotency key.
func ErrContention(err error) *AppError {
	return Wrap(CodeContention, "Account busy, retry the request", http.StatusServiceUnavailable, err)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- System & Infrastructure (SYS) ----

// ErrStorageFault wraps a persistence failure. The current operation
// aborts with no partial write.
func ErrStorageFault(err error) *AppError {
	return Wrap(CodeStorageFault, "Internal storage error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeStorageFault, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a LED_001-style validation error.
func Validation(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}
