package payment

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/payment-mock/internal/common"
	"github.com/noah-isme/payment-mock/internal/idempotency"
	"github.com/noah-isme/payment-mock/internal/obs"
)

const defaultStageDelay = 80 * time.Millisecond

// ServiceConfig wires the engine's collaborators. Zero values get in-memory defaults.
type ServiceConfig struct {
	Store      *Store
	Ledger     idempotency.Ledger
	Clock      Clock
	IDs        IDSource
	StageDelay time.Duration
	Logger     *zerolog.Logger
}

// Service drives payment intents through their lifecycle and keeps the refund ledger.
type Service struct {
	store      *Store
	ledger     idempotency.Ledger
	clock      Clock
	ids        IDSource
	stageDelay time.Duration
	logger     zerolog.Logger
	validate   *validator.Validate
	tracer     trace.Tracer
}

// NewService builds a Service from cfg.
func NewService(cfg ServiceConfig) *Service {
	svc := &Service{
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		clock:      cfg.Clock,
		ids:        cfg.IDs,
		stageDelay: cfg.StageDelay,
		logger:     zerolog.Nop(),
		validate:   validator.New(),
		tracer:     otel.Tracer("payment.Service"),
	}
	if svc.store == nil {
		svc.store = NewStore()
	}
	if svc.ledger == nil {
		svc.ledger = idempotency.NewMemoryLedger()
	}
	if svc.clock == nil {
		svc.clock = SystemClock{}
	}
	if svc.ids == nil {
		svc.ids = UUIDSource{}
	}
	if svc.stageDelay <= 0 {
		svc.stageDelay = defaultStageDelay
	}
	if cfg.Logger != nil {
		svc.logger = cfg.Logger.With().Str("component", "payment").Logger()
	}
	return svc
}

// Store exposes the backing store, mainly for shutdown.
func (s *Service) Store() *Store { return s.store }

type createParams struct {
	Amount          int64  `validate:"gt=0"`
	Currency        string `validate:"required"`
	PaymentMethodID string `validate:"required"`
}

// CreateIntent opens a new intent from body. The bool result is false when an
// earlier request with the same key and an identical body is being replayed.
func (s *Service) CreateIntent(ctx context.Context, body map[string]any, key string) (Intent, bool, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	result := "rejected"
	defer func() {
		span.SetAttributes(attribute.String("payment.intent.result", result))
		if obs.IntentsTotal != nil {
			obs.IntentsTotal.WithLabelValues(result).Inc()
		}
	}()

	signature := idempotency.Signature(body)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if key != "" {
		intent, found, err := s.replayCreate(ctx, key, signature)
		if err != nil {
			return Intent{}, false, err
		}
		if found {
			result = "replayed"
			return intent, false, nil
		}
	}

	params := createParams{
		Amount:          amountField(body, "amount"),
		Currency:        stringField(body, "currency"),
		PaymentMethodID: stringField(body, "payment_method_id"),
	}
	if err := s.validate.Struct(params); err != nil {
		return Intent{}, false, createValidationError(err)
	}

	now := s.clock.Now().UTC()
	intent := &Intent{
		ID:              s.ids.NewID(prefixIntent),
		Status:          StatusRequiresConfirmation,
		Amount:          params.Amount,
		Currency:        params.Currency,
		PaymentMethodID: params.PaymentMethodID,
		CaptureMethod:   "automatic",
		ClientSecret:    s.ids.NewID(prefixSecret),
		CreatedAt:       now,
		Jobs:            []Job{},
	}
	if customer := stringField(body, "customer_id"); customer != "" {
		intent.CustomerID = &customer
	}
	if capture := stringField(body, "capture_method"); capture != "" {
		intent.CaptureMethod = capture
	}

	if key != "" {
		err := s.ledger.Remember(ctx, idempotency.OpCreateIntent, key, idempotency.Record{TargetID: intent.ID, Signature: signature})
		if errors.Is(err, idempotency.ErrKeyExists) {
			// another instance sharing the ledger recorded the key first
			replayed, found, err := s.replayCreate(ctx, key, signature)
			if err != nil {
				return Intent{}, false, err
			}
			if found {
				result = "replayed"
				return replayed, false, nil
			}
			return Intent{}, false, ErrIdempotencyConflict
		}
		if err != nil {
			return Intent{}, false, common.Internal(err)
		}
	}

	s.store.intents[intent.ID] = intent
	result = "created"
	span.SetAttributes(attribute.String("payment.intent.id", intent.ID))
	s.logger.Debug().Str("intent_id", intent.ID).Int64("amount", intent.Amount).Str("currency", intent.Currency).Msg("intent created")
	return intent.snapshot(), true, nil
}

// replayCreate resolves a recorded create key. Callers hold the store lock.
func (s *Service) replayCreate(ctx context.Context, key, signature string) (Intent, bool, error) {
	rec, found, err := s.ledger.Lookup(ctx, idempotency.OpCreateIntent, key)
	if err != nil {
		return Intent{}, false, common.Internal(err)
	}
	if !found {
		return Intent{}, false, nil
	}
	if rec.Signature != signature {
		return Intent{}, false, ErrIdempotencyConflict
	}
	intent, ok := s.store.intents[rec.TargetID]
	if !ok {
		// the key outlived the intent (shared ledger, restarted process)
		return Intent{}, false, ErrIdempotencyConflict
	}
	return intent.snapshot(), true, nil
}

func createValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return common.Internal(err)
	}
	switch verrs[0].Field() {
	case "Amount":
		return ErrInvalidAmount
	case "Currency":
		return ErrInvalidCurrency
	default:
		return ErrMissingPaymentMethod
	}
}

// ConfirmIntent moves an intent into processing and starts its pipeline. The
// bool result reports whether the pipeline was started by this call; replays
// and confirmations of an already confirmed intent return the current snapshot.
func (s *Service) ConfirmIntent(ctx context.Context, id string, body map[string]any, key string) (Intent, bool, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ConfirmIntent")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent.id", id))

	result := "rejected"
	defer func() {
		span.SetAttributes(attribute.String("payment.confirm.result", result))
		if obs.ConfirmationsTotal != nil {
			obs.ConfirmationsTotal.WithLabelValues(result).Inc()
		}
	}()

	signature := idempotency.Signature(body)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	intent, ok := s.store.intents[id]
	if !ok {
		return Intent{}, false, ErrNotFound
	}

	if key != "" {
		replayed, err := s.replayConfirm(ctx, key, id, signature)
		if err != nil {
			return Intent{}, false, err
		}
		if replayed {
			result = "replayed"
			return intent.snapshot(), false, nil
		}
	}

	if stringField(body, "payment_method_id") == "" {
		return Intent{}, false, ErrMissingPaymentMethod
	}

	if key != "" {
		err := s.ledger.Remember(ctx, idempotency.OpConfirmIntent, key, idempotency.Record{TargetID: id, Signature: signature})
		if errors.Is(err, idempotency.ErrKeyExists) {
			replayed, err := s.replayConfirm(ctx, key, id, signature)
			if err != nil {
				return Intent{}, false, err
			}
			if replayed {
				result = "replayed"
				return intent.snapshot(), false, nil
			}
			return Intent{}, false, ErrIdempotencyConflict
		}
		if err != nil {
			return Intent{}, false, common.Internal(err)
		}
	}

	if intent.Status != StatusRequiresConfirmation {
		result = "already_confirmed"
		return intent.snapshot(), false, nil
	}

	intent.Status = StatusProcessing
	s.startPipeline(intent)
	result = "accepted"
	s.logger.Debug().Str("intent_id", id).Msg("intent confirmed")
	return intent.snapshot(), true, nil
}

// replayConfirm reports whether key was already used for this exact confirmation.
// Callers hold the store lock.
func (s *Service) replayConfirm(ctx context.Context, key, id, signature string) (bool, error) {
	rec, found, err := s.ledger.Lookup(ctx, idempotency.OpConfirmIntent, key)
	if err != nil {
		return false, common.Internal(err)
	}
	if !found {
		return false, nil
	}
	if !rec.Matches(id, signature) {
		return false, ErrIdempotencyConflict
	}
	return true, nil
}

// GetIntent returns the current snapshot of an intent.
func (s *Service) GetIntent(ctx context.Context, id string) (Intent, error) {
	_, span := s.tracer.Start(ctx, "PaymentService.GetIntent")
	defer span.End()

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	intent, ok := s.store.intents[id]
	if !ok {
		return Intent{}, ErrNotFound
	}
	return intent.snapshot(), nil
}

// ListJobs returns the pipeline jobs of an intent, empty before confirmation.
func (s *Service) ListJobs(ctx context.Context, id string) ([]Job, error) {
	intent, err := s.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	return intent.Jobs, nil
}

// GetPayment returns the payment captured for an intent. Intents that have not
// succeeded yet have no payment.
func (s *Service) GetPayment(ctx context.Context, intentID string) (Payment, error) {
	_, span := s.tracer.Start(ctx, "PaymentService.GetPayment")
	defer span.End()

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	p, ok := s.store.payments[intentID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *p, nil
}

func stringField(body map[string]any, name string) string {
	v, ok := body[name].(string)
	if !ok {
		return ""
	}
	return v
}

// amountField returns the integral value of a JSON number, or 0 when the field
// is missing, not a number, fractional, or out of range. Request bodies carry
// json.Number; float64 values are only exact up to 2^53.
func amountField(body map[string]any, name string) int64 {
	switch v := body[name].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return exactInt(f)
	case float64:
		return exactInt(v)
	default:
		return 0
	}
}

const maxExactFloat = 1 << 53

func exactInt(v float64) int64 {
	if v != math.Trunc(v) || v > maxExactFloat || v < -maxExactFloat {
		return 0
	}
	return int64(v)
}
