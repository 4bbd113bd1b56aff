package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shophub/apperrors"
	"shophub/gateway"
	"shophub/models"

	"github.com/shopspring/decimal"
)

// PaymentService is the client-facing payment surface. Gateway calls are
// bounded by timeout and never retried here; the client resubmits.
type PaymentService struct {
	gateway gateway.Gateway
	ledger  *OrderLedger
	timeout time.Duration
	logger  *slog.Logger
}

func NewPaymentService(gw gateway.Gateway, ledger *OrderLedger, timeout time.Duration, logger *slog.Logger) *PaymentService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PaymentService{
		gateway: gw,
		ledger:  ledger,
		timeout: timeout,
		logger:  logger.With("component", "payments"),
	}
}

// InitiateInput is the body of a payment initiation.
type InitiateInput struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

// Initiate opens a payment intent for the order named in metadata. The amount
// is always the stored order total; a client amount that disagrees is rejected.
func (s *PaymentService) Initiate(ctx context.Context, actor Actor, in InitiateInput) (*models.PaymentIntent, error) {
	orderID := strings.TrimSpace(in.Metadata[models.MetadataOrderID])
	if orderID == "" {
		return nil, apperrors.Validation("missing_order", "metadata.orderId is required")
	}
	o, err := s.ledger.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := payable(actor, o); err != nil {
		return nil, err
	}
	if o.PaymentMethod == models.MethodCOD {
		return nil, apperrors.Validation("cod_order", "Cash on delivery orders are not paid online")
	}
	if !in.Amount.IsZero() && !models.RoundMoney(in.Amount).Equal(o.Total) {
		return nil, apperrors.Validation("amount_mismatch", "Amount does not match the order total")
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = o.Currency
	}
	if currency != o.Currency {
		return nil, apperrors.Validation("currency_mismatch", "Currency does not match the order")
	}

	metadata := make(map[string]string, len(in.Metadata)+2)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata[models.MetadataOrderID] = o.OrderID
	metadata["userId"] = o.UserID

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	intent, err := s.gateway.CreateIntent(gctx, models.ToMinorUnits(o.Total), currency, metadata)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.AttachPaymentIntent(ctx, actor, o.OrderID, intent.ID); err != nil {
		s.logger.Error("failed to attach payment intent", "order_id", o.OrderID, "intent_id", intent.ID, "error", err)
		return nil, err
	}
	s.logger.Info("payment initiated", "order_id", o.OrderID, "intent_id", intent.ID, "amount", intent.Amount)
	return intent, nil
}

// Verify polls the gateway for an intent and applies a final result to its
// order. It covers a webhook that is late or lost.
func (s *PaymentService) Verify(ctx context.Context, actor Actor, intentID string) (*models.Order, error) {
	intent, err := s.intentFor(ctx, actor, intentID)
	if err != nil {
		return nil, err
	}
	o, err := s.ledger.GetOrder(ctx, actor, intent.OrderID())
	if err != nil {
		return nil, err
	}

	var result PaymentResult
	switch {
	case intent.Status == models.IntentSucceeded:
		result = PaymentResult{Status: models.PaymentCompleted, IntentID: intent.ID, Source: "verify:" + intent.ID}
	case intent.Status == models.IntentRequiresPaymentMethod && intent.FailureMessage != "":
		result = PaymentResult{Status: models.PaymentFailed, Reason: intent.FailureMessage, IntentID: intent.ID, Source: "verify:" + intent.ID}
	default:
		return o, nil
	}

	out, err := s.ledger.ApplyPaymentResult(ctx, o.OrderID, result)
	if err != nil {
		return nil, err
	}
	return out.Order, nil
}

// GetIntent returns the gateway's view of an intent the actor may see.
func (s *PaymentService) GetIntent(ctx context.Context, actor Actor, intentID string) (*models.PaymentIntent, error) {
	return s.intentFor(ctx, actor, intentID)
}

func (s *PaymentService) intentFor(ctx context.Context, actor Actor, intentID string) (*models.PaymentIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, apperrors.Validation("missing_intent", "intentId is required")
	}
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	intent, err := s.gateway.RetrieveIntent(gctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.OrderID() == "" {
		if actor.IsAdmin() {
			return intent, nil
		}
		return nil, apperrors.ErrForbidden
	}
	if _, err := s.ledger.GetOrder(ctx, actor, intent.OrderID()); err != nil {
		return nil, err
	}
	return intent, nil
}

// RefundInput is an admin refund request. A nil Amount refunds the full total.
type RefundInput struct {
	OrderID string
	Amount  *decimal.Decimal
	Reason  string
}

// Refund refunds a completed payment. The gateway call is made once under a
// bounded timeout; on timeout the caller resubmits.
func (s *PaymentService) Refund(ctx context.Context, actor Actor, in RefundInput) (*models.Refund, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	if strings.TrimSpace(in.OrderID) == "" {
		return nil, apperrors.Validation("missing_order", "orderId is required")
	}
	o, err := s.ledger.GetOrder(ctx, actor, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != models.PaymentCompleted || o.PaymentIntentID == "" {
		return nil, apperrors.ErrInvalidStateTransition.WithMessage("Only completed payments can be refunded")
	}

	amount := o.Total
	var minor *int64
	if in.Amount != nil {
		amount = models.RoundMoney(*in.Amount)
		if !amount.IsPositive() || amount.GreaterThan(o.Total) {
			return nil, apperrors.Validation("invalid_amount", "Refund amount must be positive and at most the order total")
		}
		if !amount.Equal(o.Total) {
			m := models.ToMinorUnits(amount)
			minor = &m
		}
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "requested_by_customer"
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	refund, err := s.gateway.Refund(gctx, o.PaymentIntentID, minor, reason)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.MarkRefunded(ctx, o.OrderID, refund, amount); err != nil {
		// money moved; an operator has to line the order up with the refund
		s.logger.Error("refund issued but order not updated", "order_id", o.OrderID, "refund_id", refund.ID, "error", err)
		return nil, fmt.Errorf("record refund %s: %w", refund.ID, err)
	}
	return refund, nil
}
