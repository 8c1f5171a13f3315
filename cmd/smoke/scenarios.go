package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/payment-mock/client"
	"github.com/noah-isme/payment-mock/internal/common"
	"github.com/noah-isme/payment-mock/internal/payment"
)

type runner struct {
	c        *client.Client
	interval time.Duration
	timeout  time.Duration
}

type scenario struct {
	name string
	run  func(context.Context, runner) error
}

var scenarios = []scenario{
	{name: "intents", run: intentsHappyPath},
	{name: "refunds", run: partialRefunds},
	{name: "negative", run: negativeCases},
}

func expectStatus(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: status %d, want %d", what, got, want)
	}
	return nil
}

func expectCode(what string, err error, code string) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: expected error %q, got %v", what, code, err)
	}
	if code != "" && apiErr.Code != code {
		return fmt.Errorf("%s: error %q, want %q", what, apiErr.Code, code)
	}
	return nil
}

// sameConfirmation compares the stable parts of two confirm responses. The
// pipeline keeps running between calls, so status and job timestamps may move.
func sameConfirmation(first, repeat client.Intent) error {
	if repeat.ID != first.ID {
		return fmt.Errorf("intent %s, want %s", repeat.ID, first.ID)
	}
	if repeat.Status == payment.StatusRequiresConfirmation {
		return errors.New("intent not confirmed")
	}
	if !slices.EqualFunc(first.Jobs, repeat.Jobs, func(a, b payment.Job) bool { return a.ID == b.ID && a.Type == b.Type }) {
		return errors.New("job ids differ from first confirmation")
	}
	return nil
}

func intentsHappyPath(ctx context.Context, r runner) error {
	health, err := r.c.Health(ctx)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if !health.OK {
		return errors.New("health: ok=false")
	}

	createKey := uuid.NewString()
	req := client.CreateIntentRequest{
		Amount:          2599,
		Currency:        "USD",
		CustomerID:      "cus_123",
		PaymentMethodID: "pm_fake_visa",
		CaptureMethod:   "automatic",
		Metadata:        map[string]any{"orderId": "ORD-1001"},
	}
	created, err := r.c.CreateIntent(ctx, req, createKey)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if err := expectStatus("create", created.StatusCode, http.StatusCreated); err != nil {
		return err
	}
	intent := created.Value
	if intent.Status != payment.StatusRequiresConfirmation || intent.ClientSecret == "" {
		return fmt.Errorf("create: unexpected intent %+v", intent)
	}

	confirmKey := uuid.NewString()
	first, err := r.c.ConfirmIntent(ctx, intent.ID, "pm_fake_visa", confirmKey)
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	if err := expectStatus("confirm", first.StatusCode, http.StatusAccepted); err != nil {
		return err
	}
	if first.Value.Status != payment.StatusProcessing {
		return fmt.Errorf("confirm: status %s, want processing", first.Value.Status)
	}
	repeat, err := r.c.ConfirmIntent(ctx, intent.ID, "pm_fake_visa", confirmKey)
	if err != nil {
		return fmt.Errorf("confirm replay: %w", err)
	}
	if err := expectStatus("confirm replay", repeat.StatusCode, http.StatusOK); err != nil {
		return err
	}
	if err := sameConfirmation(first.Value, repeat.Value); err != nil {
		return fmt.Errorf("confirm replay: %w", err)
	}

	done, err := r.c.PollUntilStatus(ctx, intent.ID, r.interval, r.timeout)
	if err != nil {
		return err
	}
	if done.Status != payment.StatusSucceeded {
		return fmt.Errorf("poll: status %s, want succeeded", done.Status)
	}

	jobs, err := r.c.ListJobs(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("jobs: %w", err)
	}
	types := make([]payment.JobType, 0, len(jobs))
	for _, job := range jobs {
		if job.Status != payment.JobCompleted || job.StartedAt == nil || job.CompletedAt == nil {
			return fmt.Errorf("jobs: %s not completed", job.Type)
		}
		types = append(types, job.Type)
	}
	if !slices.Equal(types, payment.Pipeline) {
		return fmt.Errorf("jobs: types %v", types)
	}

	p, err := r.c.GetPayment(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("payment: %w", err)
	}
	if p.Amount != 2599 {
		return fmt.Errorf("payment: amount %d, want 2599", p.Amount)
	}

	again, err := r.c.CreateIntent(ctx, req, createKey)
	if err != nil {
		return fmt.Errorf("create replay: %w", err)
	}
	if again.Value.ID != intent.ID {
		return fmt.Errorf("create replay: id %s, want %s", again.Value.ID, intent.ID)
	}
	return nil
}

func partialRefunds(ctx context.Context, r runner) error {
	created, err := r.c.CreateIntent(ctx, client.CreateIntentRequest{
		Amount: 5000, Currency: "USD", CustomerID: "cus_1", PaymentMethodID: "pm_fake_visa", CaptureMethod: "automatic",
	}, uuid.NewString())
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	id := created.Value.ID
	if _, err := r.c.ConfirmIntent(ctx, id, "pm_fake_visa", uuid.NewString()); err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	if _, err := r.c.PollUntilStatus(ctx, id, r.interval, r.timeout); err != nil {
		return err
	}

	expectRemaining := func(want int64) error {
		p, err := r.c.GetPayment(ctx, id)
		if err != nil {
			return fmt.Errorf("payment: %w", err)
		}
		if p.RefundableRemaining != want {
			return fmt.Errorf("refundable_remaining %d, want %d", p.RefundableRemaining, want)
		}
		return nil
	}

	if err := expectRemaining(5000); err != nil {
		return err
	}
	for _, step := range []struct{ amount, remaining int64 }{{2000, 3000}, {3000, 0}} {
		if _, err := r.c.CreateRefund(ctx, id, step.amount); err != nil {
			return fmt.Errorf("refund %d: %w", step.amount, err)
		}
		if err := expectRemaining(step.remaining); err != nil {
			return err
		}
	}
	_, err = r.c.CreateRefund(ctx, id, 1)
	if err := expectCode("refund over remaining", err, common.CodeAmountExceedsRemaining); err != nil {
		return err
	}
	return expectRemaining(0)
}

func negativeCases(ctx context.Context, r runner) error {
	_, err := r.c.CreateIntent(ctx, client.CreateIntentRequest{Amount: 0, Currency: "USD", CustomerID: "cus_x", PaymentMethodID: "pm_fake_visa"}, "")
	if err := expectCode("create amount=0", err, common.CodeInvalidAmount); err != nil {
		return err
	}

	created, err := r.c.CreateIntent(ctx, client.CreateIntentRequest{Amount: 1000, Currency: "USD", CustomerID: "cus_x", PaymentMethodID: "pm_fake_visa"}, "")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	_, err = r.c.ConfirmIntent(ctx, created.Value.ID, "", "")
	if err := expectCode("confirm without payment method", err, common.CodeMissingPaymentMethod); err != nil {
		return err
	}

	_, err = r.c.ConfirmIntent(ctx, "pi_does_not_exist", "pm_fake_visa", uuid.NewString())
	if err := expectCode("confirm unknown intent", err, common.CodeNotFound); err != nil {
		return err
	}

	key := uuid.NewString()
	if _, err := r.c.CreateIntent(ctx, client.CreateIntentRequest{Amount: 10, Currency: "USD", PaymentMethodID: "pm"}, key); err != nil {
		return fmt.Errorf("create keyed: %w", err)
	}
	_, err = r.c.CreateIntent(ctx, client.CreateIntentRequest{Amount: 11, Currency: "USD", PaymentMethodID: "pm"}, key)
	return expectCode("create key reuse", err, common.CodeIdempotencyConflict)
}
