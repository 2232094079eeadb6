package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("LED_002", "Transfer would exceed credit limit", http.StatusPaymentRequired),
			expected: "[LED_002] Transfer would exceed credit limit",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "Internal storage error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] Internal storage error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("LED_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestLedgerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidAmount", ErrInvalidAmount("amount must be positive"), "LED_001", 400},
		{"InsufficientCredit", ErrInsufficientCredit(), "LED_002", 402},
		{"RatingOutOfRange", ErrRatingOutOfRange(), "LED_003", 400},
		{"Contention", ErrContention(fmt.Errorf("lock wait timed out")), "LED_004", 503},
		{"NotFound", ErrNotFound("Wallet"), "LED_005", 404},
		{"Validation", Validation("invalid user id"), "LED_001", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg down")

	storage := ErrStorageFault(inner)
	assert.Equal(t, "SYS_001", storage.Code)
	assert.Equal(t, http.StatusInternalServerError, storage.HTTPStatus)
	assert.True(t, errors.Is(storage, inner))

	internal := InternalError(inner)
	assert.Equal(t, "SYS_001", internal.Code)
	assert.True(t, errors.Is(internal, inner))
}

func TestIsCode(t *testing.T) {
	assert.True(t, IsCode(ErrInsufficientCredit(), CodeInsufficientCredit))
	assert.False(t, IsCode(ErrInsufficientCredit(), CodeContention))

	// Wrapped AppErrors still match.
	wrapped := fmt.Errorf("transfer: %w", ErrInsufficientCredit())
	assert.True(t, IsCode(wrapped, CodeInsufficientCredit))

	assert.False(t, IsCode(fmt.Errorf("plain error"), CodeInsufficientCredit))
	assert.False(t, IsCode(nil, CodeInsufficientCredit))
}
