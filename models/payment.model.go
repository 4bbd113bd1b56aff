package models

import "time"

// MetadataOrderID is the intent metadata key that links an intent to an order.
const MetadataOrderID = "orderId"

// Intent statuses reported by the gateway.
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentCanceled              = "canceled"
)

// PaymentIntent is the gateway-owned payment attempt. Only a reference is kept
// on the order; this struct is the adapter's view of it.
type PaymentIntent struct {
	ID             string            `json:"intentId"`
	ClientSecret   string            `json:"clientSecret,omitempty"`
	Amount         int64             `json:"amount"` // minor units
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	FailureMessage string            `json:"failureMessage,omitempty"`
}

// OrderID returns the order reference carried in metadata.
func (pi PaymentIntent) OrderID() string {
	return pi.Metadata[MetadataOrderID]
}

// Refund is the gateway's acknowledgement of a refund.
type Refund struct {
	ID       string `json:"refundId"`
	IntentID string `json:"intentId"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

// EMIOption is an instalment plan offered for the emi payment method.
type EMIOption struct {
	Months   int     `json:"months"`
	Interest float64 `json:"interest"` // annual percent
}

// EMIOptions is the fixed instalment table.
func EMIOptions() []EMIOption {
	return []EMIOption{
		{Months: 3, Interest: 0},
		{Months: 6, Interest: 2.5},
		{Months: 9, Interest: 4.0},
		{Months: 12, Interest: 6.0},
	}
}

// Gateway event types the processor acts on.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// WebhookEvent is a verified gateway event. Concrete types are
// PaymentSucceededEvent, PaymentFailedEvent, UnrecognizedEvent and MalformedEvent.
type WebhookEvent interface {
	EventID() string
	EventType() string
	isWebhookEvent()
}

// PaymentSucceededEvent reports a captured payment.
type PaymentSucceededEvent struct {
	ID     string
	Intent PaymentIntent
}

// PaymentFailedEvent reports a declined or errored payment attempt.
type PaymentFailedEvent struct {
	ID     string
	Intent PaymentIntent
}

// UnrecognizedEvent is any authenticated event checkout does not act on.
type UnrecognizedEvent struct {
	ID   string
	Type string
}

// MalformedEvent is an authenticated event that cannot be applied: no id, or
// a payment intent that does not decode. It is acknowledged, never retried.
type MalformedEvent struct {
	ID     string
	Type   string
	Reason string
}

func (e PaymentSucceededEvent) EventID() string { return e.ID }
func (e PaymentSucceededEvent) EventType() string { return EventPaymentSucceeded }
func (PaymentSucceededEvent) isWebhookEvent() {}
func (e PaymentFailedEvent) EventID() string { return e.ID }
func (e PaymentFailedEvent) EventType() string { return EventPaymentFailed }
func (PaymentFailedEvent) isWebhookEvent() {}
func (e UnrecognizedEvent) EventID() string { return e.ID }
func (e UnrecognizedEvent) EventType() string { return e.Type }
func (UnrecognizedEvent) isWebhookEvent() {}
func (e MalformedEvent) EventID() string { return e.ID }
func (e MalformedEvent) EventType() string { return e.Type }
func (MalformedEvent) isWebhookEvent() {}

// IdempotencyRecord marks a gateway event as applied.
type IdempotencyRecord struct {
	EventID     string    `bson:"_id" json:"eventId"`
	EventType   string    `bson:"event_type" json:"eventType"`
	OrderID     string    `bson:"order_id,omitempty" json:"orderId,omitempty"`
	Outcome     string    `bson:"outcome" json:"outcome"`
	ProcessedAt time.Time `bson:"processed_at" json:"processedAt"`
}

// Outcomes recorded with an IdempotencyRecord.
const (
	OutcomeApplied       = "applied"
	OutcomeNoop          = "noop"
	OutcomeOrderNotFound = "order_not_found"
	OutcomeReconcile     = "reconciliation_required"
)
