package payment

import "time"

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	StatusRequiresConfirmation IntentStatus = "requires_confirmation"
	StatusProcessing           IntentStatus = "processing"
	StatusSucceeded            IntentStatus = "succeeded"
	// StatusFailed is part of the public contract but no code path produces it:
	// every pipeline stage succeeds.
	StatusFailed IntentStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s IntentStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// JobType names one stage of the processing pipeline.
type JobType string

const (
	JobAntiFraud     JobType = "anti_fraud"
	JobAuthorization JobType = "authorization"
	JobRisk          JobType = "risk"
	JobCompliance    JobType = "compliance"
	JobCapture       JobType = "capture"
)

// Pipeline is the fixed order in which stages complete after confirmation.
var Pipeline = []JobType{JobAntiFraud, JobAuthorization, JobRisk, JobCompliance, JobCapture}

// JobStatus is the state of one pipeline stage.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobCompleted JobStatus = "completed"
)

// Job is one stage of an intent's processing pipeline.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Intent is a request to charge a customer.
type Intent struct {
	ID              string       `json:"id"`
	Status          IntentStatus `json:"status"`
	Amount          int64        `json:"amount"`
	Currency        string       `json:"currency"`
	CustomerID      *string      `json:"customer_id"`
	PaymentMethodID string       `json:"payment_method_id"`
	CaptureMethod   string       `json:"capture_method"`
	ClientSecret    string       `json:"client_secret"`
	CreatedAt       time.Time    `json:"created_at"`
	Jobs            []Job        `json:"jobs"`
}

// Payment is the captured result of a succeeded intent. It is keyed by the intent id.
type Payment struct {
	ID                  string    `json:"id"`
	IntentID            string    `json:"intent_id"`
	Amount              int64     `json:"amount"`
	Currency            string    `json:"currency"`
	CapturedAt          time.Time `json:"captured_at"`
	RefundableRemaining int64     `json:"refundable_remaining"`
}

// Refund reverses part or all of a captured payment.
type Refund struct {
	ID              string    `json:"id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
}

// snapshot deep-copies the intent so callers can encode it without holding the store lock.
func (i *Intent) snapshot() Intent {
	out := *i
	if i.CustomerID != nil {
		id := *i.CustomerID
		out.CustomerID = &id
	}
	out.Jobs = make([]Job, len(i.Jobs))
	for idx, job := range i.Jobs {
		out.Jobs[idx] = job.snapshot()
	}
	return out
}

func (j Job) snapshot() Job {
	if j.StartedAt != nil {
		t := *j.StartedAt
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	return j
}
