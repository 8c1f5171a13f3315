package payment

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/payment-mock/internal/obs"
)

type refundParams struct {
	PaymentIntentID string `validate:"required"`
	Amount          int64  `validate:"gt=0"`
}

// CreateRefund takes amount off the refundable balance of the payment captured
// for payment_intent_id. Refunds are not idempotent: every accepted call
// creates a new refund and lowers the balance again.
func (s *Service) CreateRefund(ctx context.Context, body map[string]any) (Refund, error) {
	_, span := s.tracer.Start(ctx, "PaymentService.CreateRefund")
	defer span.End()

	result := "rejected"
	defer func() {
		span.SetAttributes(attribute.String("payment.refund.result", result))
		if obs.RefundsTotal != nil {
			obs.RefundsTotal.WithLabelValues(result).Inc()
		}
	}()

	params := refundParams{
		PaymentIntentID: stringField(body, "payment_intent_id"),
		Amount:          amountField(body, "amount"),
	}
	if err := s.validate.Struct(params); err != nil {
		return Refund{}, ErrInvalidRefund
	}
	span.SetAttributes(attribute.String("payment.intent.id", params.PaymentIntentID))

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	p, ok := s.store.payments[params.PaymentIntentID]
	if !ok {
		return Refund{}, ErrNotFound
	}
	if params.Amount > p.RefundableRemaining {
		result = "exceeds_remaining"
		return Refund{}, ErrAmountExceedsRemaining
	}

	p.RefundableRemaining -= params.Amount
	refund := &Refund{
		ID:              s.ids.NewID(prefixRefund),
		PaymentIntentID: params.PaymentIntentID,
		Amount:          params.Amount,
		Currency:        p.Currency,
		CreatedAt:       s.clock.Now().UTC(),
	}
	s.store.refunds[params.PaymentIntentID] = append(s.store.refunds[params.PaymentIntentID], refund)
	result = "created"
	s.logger.Debug().Str("intent_id", params.PaymentIntentID).Int64("amount", params.Amount).Int64("remaining", p.RefundableRemaining).Msg("refund created")
	return *refund, nil
}

// ListRefunds returns the refunds of a payment in creation order.
func (s *Service) ListRefunds(ctx context.Context, intentID string) ([]Refund, error) {
	_, span := s.tracer.Start(ctx, "PaymentService.ListRefunds")
	defer span.End()

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.payments[intentID]; !ok {
		return nil, ErrNotFound
	}
	list := s.store.refunds[intentID]
	out := make([]Refund, len(list))
	for i, r := range list {
		out[i] = *r
	}
	return out, nil
}
