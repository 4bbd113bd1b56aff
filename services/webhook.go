package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shophub/apperrors"
	"shophub/gateway"
	"shophub/models"
	"shophub/store"
)

// WebhookProcessor applies authenticated gateway callbacks to orders at most
// once per event id.
type WebhookProcessor struct {
	gateway gateway.Gateway
	secret  string
	ledger  *OrderLedger
	events  store.EventLedger
	logger  *slog.Logger
	now     func() time.Time
}

func NewWebhookProcessor(gw gateway.Gateway, secret string, ledger *OrderLedger, events store.EventLedger, logger *slog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		gateway: gw,
		secret:  secret,
		ledger:  ledger,
		events:  events,
		logger:  logger.With("component", "webhook"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WebhookResult reports what happened to one delivery. Every non-error
// result is acknowledged to the gateway the same way.
type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Outcome   string
}

// Process verifies, deduplicates and applies one callback. Errors returned
// before the event is recorded are safe for the gateway to retry; signature
// failures leave no trace.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := p.gateway.VerifyWebhook(payload, signature, p.secret)
	if err != nil {
		p.logger.Warn("webhook rejected", "error", err)
		return nil, err
	}
	if bad, ok := event.(models.MalformedEvent); ok {
		// redelivery would fail the same way
		p.logger.Warn("malformed webhook event acknowledged", "event_id", bad.ID, "event_type", bad.Type, "reason", bad.Reason)
		return &WebhookResult{EventID: bad.ID, EventType: bad.Type, Outcome: "ignored"}, nil
	}
	res := &WebhookResult{EventID: event.EventID(), EventType: event.EventType()}
	log := p.logger.With("event_id", res.EventID, "event_type", res.EventType)

	seen, err := p.events.Processed(ctx, res.EventID)
	if err != nil {
		return nil, fmt.Errorf("check event ledger: %w", err)
	}
	if seen {
		log.Info("duplicate webhook delivery ignored")
		res.Duplicate = true
		return res, nil
	}

	var (
		intent models.PaymentIntent
		result PaymentResult
	)
	switch ev := event.(type) {
	case models.PaymentSucceededEvent:
		intent = ev.Intent
		result = PaymentResult{Status: models.PaymentCompleted, IntentID: intent.ID, Source: ev.ID}
	case models.PaymentFailedEvent:
		intent = ev.Intent
		result = PaymentResult{Status: models.PaymentFailed, Reason: intent.FailureMessage, IntentID: intent.ID, Source: ev.ID}
	default:
		log.Info("unhandled webhook event type acknowledged")
		res.Outcome = "ignored"
		return res, nil
	}

	orderID := intent.OrderID()
	outcome := models.OutcomeOrderNotFound
	if orderID == "" {
		log.Warn("webhook intent carries no order reference", "intent_id", intent.ID)
	} else {
		applied, err := p.ledger.ApplyPaymentResult(ctx, orderID, result)
		switch {
		case errors.Is(err, apperrors.ErrOrderNotFound):
			log.Warn("webhook references unknown order", "order_id", orderID, "intent_id", intent.ID)
		case err != nil:
			return nil, fmt.Errorf("apply payment result: %w", err)
		case applied.Reconcile:
			outcome = models.OutcomeReconcile
		case applied.Changed:
			outcome = models.OutcomeApplied
		default:
			outcome = models.OutcomeNoop
		}
	}

	err = p.events.Record(ctx, models.IdempotencyRecord{
		EventID:     res.EventID,
		EventType:   res.EventType,
		OrderID:     orderID,
		Outcome:     outcome,
		ProcessedAt: p.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}
	log.Info("webhook processed", "order_id", orderID, "outcome", outcome)
	res.Outcome = outcome
	return res, nil
}
