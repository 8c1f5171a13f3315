package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-mock/internal/idempotency"
	"github.com/noah-isme/payment-mock/internal/payment"
)

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)

	intent, created, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, payment.StatusRequiresConfirmation, intent.Status)
	require.Equal(t, int64(5000), intent.Amount)
	require.Equal(t, "USD", intent.Currency)
	require.NotNil(t, intent.CustomerID)
	require.Equal(t, "cus_1", *intent.CustomerID)
	require.Equal(t, "pm_fake_visa", intent.PaymentMethodID)
	require.Equal(t, "automatic", intent.CaptureMethod)
	require.NotEmpty(t, intent.ClientSecret)
	require.Equal(t, epoch, intent.CreatedAt)
	require.NotNil(t, intent.Jobs)
	require.Empty(t, intent.Jobs)

	other, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	require.NotEqual(t, intent.ID, other.ID)
	require.NotEqual(t, intent.ClientSecret, other.ClientSecret)
}

func TestCreateIntentDefaults(t *testing.T) {
	f := newFixture(t)
	intent, _, err := f.svc.CreateIntent(t.Context(), body(t, `{"amount":1,"currency":"EUR","payment_method_id":"pm"}`), "")
	require.NoError(t, err)
	require.Nil(t, intent.CustomerID)
	require.Equal(t, "automatic", intent.CaptureMethod)
}

func TestCreateIntentValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"zero amount", `{"amount":0,"currency":"USD","payment_method_id":"pm"}`, payment.ErrInvalidAmount},
		{"negative amount", `{"amount":-5,"currency":"USD","payment_method_id":"pm"}`, payment.ErrInvalidAmount},
		{"string amount", `{"amount":"5000","currency":"USD","payment_method_id":"pm"}`, payment.ErrInvalidAmount},
		{"fractional amount", `{"amount":10.5,"currency":"USD","payment_method_id":"pm"}`, payment.ErrInvalidAmount},
		{"missing amount", `{"currency":"USD","payment_method_id":"pm"}`, payment.ErrInvalidAmount},
		{"amount checked first", `{"amount":0}`, payment.ErrInvalidAmount},
		{"empty currency", `{"amount":100,"currency":"","payment_method_id":"pm"}`, payment.ErrInvalidCurrency},
		{"numeric currency", `{"amount":100,"currency":840,"payment_method_id":"pm"}`, payment.ErrInvalidCurrency},
		{"missing payment method", `{"amount":100,"currency":"USD"}`, payment.ErrMissingPaymentMethod},
		{"empty payment method", `{"amount":100,"currency":"USD","payment_method_id":""}`, payment.ErrMissingPaymentMethod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, _, err := f.svc.CreateIntent(t.Context(), body(t, tc.body), "")
			require.ErrorIs(t, err, tc.want)
		})
	}

	f := newFixture(t)
	_, _, err := f.svc.CreateIntent(t.Context(), map[string]any{}, "")
	require.ErrorIs(t, err, payment.ErrInvalidAmount)
}

func TestCreateIntentIdempotentReplay(t *testing.T) {
	f := newFixture(t)

	first, created, err := f.svc.CreateIntent(t.Context(), body(t, `{"amount":2599,"currency":"USD","payment_method_id":"pm","metadata":{"orderId":"ORD-1","n":1}}`), "key-1")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.CreateIntent(t.Context(), body(t, `{"metadata":{"n":1,"orderId":"ORD-1"},"payment_method_id":"pm","currency":"USD","amount":2599}`), "key-1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, second)

	_, _, err = f.svc.CreateIntent(t.Context(), body(t, `{"amount":2600,"currency":"USD","payment_method_id":"pm"}`), "key-1")
	require.ErrorIs(t, err, payment.ErrIdempotencyConflict)

	require.Equal(t, 1, f.svc.Store().Stats().Intents)
}

func TestCreateIntentReplayBeforeValidation(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "key-1")
	require.NoError(t, err)

	// a recorded key with a different (invalid) body is a conflict, not a validation error
	_, _, err = f.svc.CreateIntent(t.Context(), body(t, `{"amount":0}`), "key-1")
	require.ErrorIs(t, err, payment.ErrIdempotencyConflict)
}

func TestCreateIntentInvalidDoesNotRecordKey(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreateIntent(t.Context(), body(t, `{"amount":0,"currency":"USD","payment_method_id":"pm"}`), "key-1")
	require.ErrorIs(t, err, payment.ErrInvalidAmount)

	intent, created, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "key-1")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, intent.ID)
}

func TestCreateIntentWithoutKeyIsNeverReplayed(t *testing.T) {
	f := newFixture(t)
	a, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	b, created, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, a.ID, b.ID)
}

func TestConfirmIntent(t *testing.T) {
	f := newFixture(t)
	intent, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)

	confirmed, started, err := f.svc.ConfirmIntent(t.Context(), intent.ID, body(t, `{"payment_method_id":"pm_fake_visa"}`), "")
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, payment.StatusProcessing, confirmed.Status)
	require.Len(t, confirmed.Jobs, len(payment.Pipeline))
	for i, job := range confirmed.Jobs {
		require.Equal(t, payment.Pipeline[i], job.Type)
		require.Equal(t, payment.JobQueued, job.Status)
		require.NotNil(t, job.StartedAt)
		require.Nil(t, job.CompletedAt)
	}
}

func TestConfirmUnknownIntent(t *testing.T) {
	f := newFixture(t)
	for _, key := range []string{"", "some-key"} {
		_, _, err := f.svc.ConfirmIntent(t.Context(), "pi_missing", body(t, `{"payment_method_id":"pm"}`), key)
		require.ErrorIs(t, err, payment.ErrNotFound)
	}
}

func TestConfirmRequiresPaymentMethod(t *testing.T) {
	f := newFixture(t)
	intent, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)

	_, _, err = f.svc.ConfirmIntent(t.Context(), intent.ID, map[string]any{}, "")
	require.ErrorIs(t, err, payment.ErrMissingPaymentMethod)

	got, err := f.svc.GetIntent(t.Context(), intent.ID)
	require.NoError(t, err)
	require.Equal(t, payment.StatusRequiresConfirmation, got.Status)
	require.Empty(t, got.Jobs)
}

func TestConfirmIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	intent, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	confirmBody := body(t, `{"payment_method_id":"pm_fake_visa"}`)

	first, started, err := f.svc.ConfirmIntent(t.Context(), intent.ID, confirmBody, "confirm-1")
	require.NoError(t, err)
	require.True(t, started)

	second, started, err := f.svc.ConfirmIntent(t.Context(), intent.ID, confirmBody, "confirm-1")
	require.NoError(t, err)
	require.False(t, started)
	require.Equal(t, first, second)
	require.Equal(t, 1, f.clock.Pending())

	_, _, err = f.svc.ConfirmIntent(t.Context(), intent.ID, body(t, `{"payment_method_id":"pm_other"}`), "confirm-1")
	require.ErrorIs(t, err, payment.ErrIdempotencyConflict)

	other, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	_, _, err = f.svc.ConfirmIntent(t.Context(), other.ID, confirmBody, "confirm-1")
	require.ErrorIs(t, err, payment.ErrIdempotencyConflict)
}

func TestConfirmAlreadyConfirmedDoesNotRestartPipeline(t *testing.T) {
	f := newFixture(t)
	intent, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	confirmBody := body(t, `{"payment_method_id":"pm"}`)

	first, _, err := f.svc.ConfirmIntent(t.Context(), intent.ID, confirmBody, "")
	require.NoError(t, err)

	again, started, err := f.svc.ConfirmIntent(t.Context(), intent.ID, confirmBody, "")
	require.NoError(t, err)
	require.False(t, started)
	require.Equal(t, first.Jobs, again.Jobs)
	require.Equal(t, 1, f.clock.Pending())
}

func TestGetIntentNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetIntent(t.Context(), "pi_nope")
	require.ErrorIs(t, err, payment.ErrNotFound)
	_, err = f.svc.ListJobs(t.Context(), "pi_nope")
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	f := newFixture(t)
	intent, _, err := f.svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	*intent.CustomerID = "tampered"

	got, err := f.svc.GetIntent(t.Context(), intent.ID)
	require.NoError(t, err)
	require.Equal(t, "cus_1", *got.CustomerID)
}

type failingLedger struct{}

func (failingLedger) Lookup(context.Context, idempotency.Operation, string) (idempotency.Record, bool, error) {
	return idempotency.Record{}, false, errors.New("ledger offline")
}

func (failingLedger) Remember(context.Context, idempotency.Operation, string, idempotency.Record) error {
	return errors.New("ledger offline")
}

func TestLedgerFailureIsInternal(t *testing.T) {
	svc := payment.NewService(payment.ServiceConfig{Ledger: failingLedger{}})
	t.Cleanup(svc.Store().Close)

	_, _, err := svc.CreateIntent(t.Context(), validIntentBody(t), "key")
	require.Error(t, err)
	require.NotErrorIs(t, err, payment.ErrIdempotencyConflict)
	require.Contains(t, err.Error(), "ledger offline")

	// without a key the ledger is never consulted
	_, created, err := svc.CreateIntent(t.Context(), validIntentBody(t), "")
	require.NoError(t, err)
	require.True(t, created)
}

type racingLedger struct {
	*idempotency.MemoryLedger
	winner idempotency.Record
}

// Remember simulates another instance recording the key between Lookup and Remember.
func (r racingLedger) Remember(ctx context.Context, op idempotency.Operation, key string, _ idempotency.Record) error {
	_ = r.MemoryLedger.Remember(ctx, op, key, r.winner)
	return idempotency.ErrKeyExists
}

func TestCreateIntentLostRaceOnSharedLedger(t *testing.T) {
	ledger := racingLedger{MemoryLedger: idempotency.NewMemoryLedger(), winner: idempotency.Record{TargetID: "pi_elsewhere", Signature: "other"}}
	svc := payment.NewService(payment.ServiceConfig{Ledger: ledger})
	t.Cleanup(svc.Store().Close)

	_, _, err := svc.CreateIntent(t.Context(), validIntentBody(t), "key")
	require.ErrorIs(t, err, payment.ErrIdempotencyConflict)
	require.Zero(t, svc.Store().Stats().Intents)
}
