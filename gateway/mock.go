package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"shophub/apperrors"
	"shophub/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Mock is an in-process gateway for local runs and tests. Intents live in
// memory and callbacks are signed with the same scheme as Stripe, so the
// webhook path is exercised end to end.
type Mock struct {
	mu      sync.Mutex
	intents map[string]*models.PaymentIntent
	refunds []models.Refund

	// Err, when set, fails every call as a gateway error.
	Err error
}

func NewMock() *Mock {
	return &Mock{intents: make(map[string]*models.PaymentIntent)}
}

func (m *Mock) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, apperrors.ErrGateway.Wrap(m.Err)
	}
	if amount <= 0 {
		return nil, apperrors.Validation("invalid_amount", "Amount must be positive")
	}

	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	intent := &models.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Amount:       amount,
		Currency:     currency,
		Status:       models.IntentRequiresPaymentMethod,
		Metadata:     md,
	}
	m.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (m *Mock) RetrieveIntent(_ context.Context, intentID string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, apperrors.ErrGateway.Wrap(m.Err)
	}
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	cp := *intent
	return &cp, nil
}

func (m *Mock) Refund(_ context.Context, intentID string, amount *int64, _ string) (*models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, apperrors.ErrGateway.Wrap(m.Err)
	}
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if intent.Status != models.IntentSucceeded {
		return nil, apperrors.Validation("charge_not_captured", "Payment has not been captured")
	}

	refunded := intent.Amount
	if amount != nil {
		refunded = *amount
	}
	r := models.Refund{
		ID:       "re_mock_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		IntentID: intentID,
		Amount:   refunded,
		Status:   "succeeded",
	}
	m.refunds = append(m.refunds, r)
	return &r, nil
}

func (m *Mock) VerifyWebhook(payload []byte, header, secret string) (models.WebhookEvent, error) {
	return verifyEvent(payload, header, secret)
}

// Settle moves an intent to status, as the device confirmation would, and
// returns its new state.
func (m *Mock) Settle(intentID, status, failure string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	intent.Status = status
	intent.FailureMessage = failure
	cp := *intent
	return &cp, nil
}

// Refunds returns the refunds issued so far.
func (m *Mock) Refunds() []models.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Refund(nil), m.refunds...)
}

type eventEnvelope struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    eventData `json:"data"`
}

type eventData struct {
	Object intentObject `json:"object"`
}

type intentObject struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *paymentError     `json:"last_payment_error,omitempty"`
}

type paymentError struct {
	Message string `json:"message"`
}

// EventPayload renders an intent event in the processor's callback format.
func EventPayload(eventID, eventType string, intent models.PaymentIntent) ([]byte, error) {
	obj := intentObject{
		ID:       intent.ID,
		Object:   "payment_intent",
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Status:   intent.Status,
		Metadata: intent.Metadata,
	}
	if intent.FailureMessage != "" {
		obj.LastPaymentError = &paymentError{Message: intent.FailureMessage}
	}
	return json.Marshal(eventEnvelope{
		ID:      eventID,
		Object:  "event",
		Type:    eventType,
		Created: time.Now().Unix(),
		Data:    eventData{Object: obj},
	})
}

// SignPayload produces the signature header for payload at t.
func SignPayload(payload []byte, secret string, t time.Time) string {
	sig := webhook.ComputeSignature(t, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), hex.EncodeToString(sig))
}
