package payment_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-mock/internal/payment"
	"github.com/noah-isme/payment-mock/internal/payment/paymenttest"
)

const stageDelay = 80 * time.Millisecond

var epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	svc   *payment.Service
	clock *paymenttest.ManualClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := paymenttest.NewManualClock(epoch)
	svc := payment.NewService(payment.ServiceConfig{
		Clock:      clock,
		IDs:        &paymenttest.SeqIDs{},
		StageDelay: stageDelay,
	})
	t.Cleanup(svc.Store().Close)
	return fixture{svc: svc, clock: clock}
}

func body(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func validIntentBody(t *testing.T) map[string]any {
	return body(t, `{"amount":5000,"currency":"USD","customer_id":"cus_1","payment_method_id":"pm_fake_visa","capture_method":"automatic"}`)
}

// succeededIntent creates, confirms and runs the pipeline to completion.
func (f fixture) succeededIntent(t *testing.T, amount int) payment.Intent {
	t.Helper()
	b := validIntentBody(t)
	b["amount"] = float64(amount)
	intent, _, err := f.svc.CreateIntent(t.Context(), b, "")
	require.NoError(t, err)
	_, _, err = f.svc.ConfirmIntent(t.Context(), intent.ID, map[string]any{"payment_method_id": "pm_fake_visa"}, "")
	require.NoError(t, err)
	f.clock.Advance(time.Duration(len(payment.Pipeline)) * stageDelay)
	got, err := f.svc.GetIntent(t.Context(), intent.ID)
	require.NoError(t, err)
	require.Equal(t, payment.StatusSucceeded, got.Status)
	return got
}
