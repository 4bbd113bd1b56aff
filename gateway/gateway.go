// Package gateway adapts the external payment processor. Implementations are
// stateless from the caller's point of view and never retry on their own.
package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"shophub/apperrors"
	"shophub/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Gateway is the payment processor capability set used by checkout.
type Gateway interface {
	// CreateIntent opens a payment intent for amount in minor units.
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	// Refund refunds amount minor units, or the full captured amount when amount is nil.
	Refund(ctx context.Context, intentID string, amount *int64, reason string) (*models.Refund, error)
	// VerifyWebhook authenticates a raw callback body and decodes it into a
	// typed event. Authentication failures return apperrors.ErrSignature.
	VerifyWebhook(payload []byte, header, secret string) (models.WebhookEvent, error)
}

// SignatureTolerance is how old a signed callback may be.
const SignatureTolerance = webhook.DefaultTolerance

// verifyEvent checks the Stripe-style signature header and parses the event.
// The mock gateway signs with the same scheme, so both share this path.
func verifyEvent(payload []byte, header, secret string) (models.WebhookEvent, error) {
	if secret == "" || header == "" {
		return nil, apperrors.ErrSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                SignatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperrors.ErrSignature.Wrap(err)
	}
	return decodeEvent(event), nil
}

// decodeEvent narrows an authenticated event into the variants checkout acts on.
func decodeEvent(event stripe.Event) models.WebhookEvent {
	typ := string(event.Type)
	if event.ID == "" {
		return models.MalformedEvent{Type: typ, Reason: "event id is missing"}
	}
	if typ != models.EventPaymentSucceeded && typ != models.EventPaymentFailed {
		return models.UnrecognizedEvent{ID: event.ID, Type: typ}
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return models.MalformedEvent{ID: event.ID, Type: typ, Reason: "event carries no payment intent"}
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return models.MalformedEvent{ID: event.ID, Type: typ, Reason: "malformed payment intent: " + err.Error()}
	}
	intent := toIntent(&pi)

	if typ == models.EventPaymentSucceeded {
		return models.PaymentSucceededEvent{ID: event.ID, Intent: intent}
	}
	return models.PaymentFailedEvent{ID: event.ID, Intent: intent}
}

func toIntent(pi *stripe.PaymentIntent) models.PaymentIntent {
	intent := models.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureMessage = pi.LastPaymentError.Msg
	}
	return intent
}

// IsGatewayError reports whether err came from the processor or the network
// path to it.
func IsGatewayError(err error) bool {
	return errors.Is(err, apperrors.ErrGateway)
}
