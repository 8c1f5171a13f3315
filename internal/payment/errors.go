package payment

import (
	"net/http"

	"github.com/noah-isme/payment-mock/internal/common"
)

// Errors returned by the engine. They are comparable with errors.Is and carry
// the code and status the HTTP layer reports.
var (
	ErrNotFound               = common.NewAppError(common.CodeNotFound, "resource not found", http.StatusNotFound, nil)
	ErrInvalidAmount          = common.NewAppError(common.CodeInvalidAmount, "amount must be a positive integer", http.StatusBadRequest, nil)
	ErrInvalidCurrency        = common.NewAppError(common.CodeInvalidCurrency, "currency must be a non-empty string", http.StatusBadRequest, nil)
	ErrMissingPaymentMethod   = common.NewAppError(common.CodeMissingPaymentMethod, "payment_method_id is required", http.StatusBadRequest, nil)
	ErrInvalidRefund          = common.NewAppError(common.CodeInvalidRefund, "payment_intent_id and a positive amount are required", http.StatusBadRequest, nil)
	ErrAmountExceedsRemaining = common.NewAppError(common.CodeAmountExceedsRemaining, "refund exceeds refundable balance", http.StatusBadRequest, nil)
	ErrIdempotencyConflict    = common.NewAppError(common.CodeIdempotencyConflict, "idempotency key reused with a different request", http.StatusConflict, nil)
)
