package common

import (
	"errors"
	"net/http"
)

// Error codes shared by every route. The mock reports them verbatim as {"error": <code>}.
const (
	CodeUnauthorized           = "unauthorized"
	CodeNotFound               = "not_found"
	CodeInvalidAmount          = "invalid_amount"
	CodeInvalidCurrency        = "invalid_currency"
	CodeMissingPaymentMethod   = "missing_payment_method"
	CodeInvalidRefund          = "invalid_refund"
	CodeAmountExceedsRemaining = "amount_exceeds_remaining"
	CodeIdempotencyConflict    = "idempotency_conflict"
	CodePayloadTooLarge        = "payload_too_large"
	CodeRateLimited            = "rate_limited"
	CodeInternal               = "internal"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Internal wraps an unexpected failure so it renders as a 500.
func Internal(err error) *AppError {
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}

// AsAppError extracts the AppError carried by err, if any.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
