package payment

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/payment-mock/internal/common"
)

// IdempotencyHeader carries the caller-supplied idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the engine over HTTP.
type Handler struct {
	Svc *Service
}

type jobsResp struct {
	IntentID string `json:"intent_id"`
	Jobs     []Job  `json:"jobs"`
}

type refundsResp struct {
	PaymentIntentID string   `json:"payment_intent_id"`
	Refunds         []Refund `json:"refunds"`
}

// CreateIntent handles POST /payment_intents.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	intent, created, err := h.Svc.CreateIntent(r.Context(), decodeBody(r), r.Header.Get(IdempotencyHeader))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	common.JSON(w, status, intent)
}

// ConfirmIntent handles PATCH /payment_intents/{id}/confirm. A fresh
// confirmation is accepted with 202 while the pipeline runs.
func (h *Handler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	intent, started, err := h.Svc.ConfirmIntent(r.Context(), id, decodeBody(r), r.Header.Get(IdempotencyHeader))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	common.JSON(w, status, intent)
}

// GetIntent handles GET /payment_intents/{id}.
func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := h.Svc.GetIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, intent)
}

// ListJobs handles GET /payment_intents/{id}/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	jobs, err := h.Svc.ListJobs(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, jobsResp{IntentID: id, Jobs: jobs})
}

// GetPayment handles GET /payments/{intentId}.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.GetPayment(r.Context(), chi.URLParam(r, "intentId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, p)
}

// ListRefunds handles GET /payments/{intentId}/refunds.
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "intentId")
	refunds, err := h.Svc.ListRefunds(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, refundsResp{PaymentIntentID: id, Refunds: refunds})
}

// CreateRefund handles POST /refunds.
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	refund, err := h.Svc.CreateRefund(r.Context(), decodeBody(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, refund)
}

// decodeBody parses a JSON object body. Empty, malformed or non-object bodies
// decode to an empty map so they fail field validation instead of parsing.
// Numbers stay json.Number so large amounts keep their exact digits.
func decodeBody(r *http.Request) map[string]any {
	if r.Body == nil {
		return map[string]any{}
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(raw) == 0 {
		return map[string]any{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return map[string]any{}
	}
	if _, err := dec.Token(); err != io.EOF {
		return map[string]any{}
	}
	return body
}
