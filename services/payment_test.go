package services

import (
	"context"
	"errors"
	"testing"

	"shophub/apperrors"
	"shophub/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t)
	md := map[string]string{models.MetadataOrderID: order.OrderID, "note": "gift"}

	_, err := f.payments.Initiate(ctx, owner, InitiateInput{Amount: decimal.NewFromInt(1), Metadata: md})
	assert.Equal(t, 400, apperrors.HTTPStatus(err), "amount that disagrees with the total")

	_, err = f.payments.Initiate(ctx, owner, InitiateInput{Currency: "usd", Metadata: md})
	assert.Equal(t, 400, apperrors.HTTPStatus(err), "currency that disagrees with the order")

	_, err = f.payments.Initiate(ctx, owner, InitiateInput{})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	_, err = f.payments.Initiate(ctx, Actor{UserID: "intruder"}, InitiateInput{Metadata: md})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	intent, err := f.payments.Initiate(ctx, owner, InitiateInput{Metadata: md})
	require.NoError(t, err)
	assert.Equal(t, int64(29500), intent.Amount)
	assert.Equal(t, "inr", intent.Currency)
	assert.Equal(t, buyer, intent.Metadata["userId"])
	assert.Equal(t, "gift", intent.Metadata["note"])
	assert.NotEmpty(t, intent.ClientSecret)
	assert.Equal(t, intent.ID, f.order(t, order.OrderID).PaymentIntentID)
}

func TestInitiateRejectsUnpayableOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cod := &models.Order{OrderID: "ORD-COD", UserID: buyer, OrderStatus: models.OrderPending, PaymentStatus: models.PaymentPending, PaymentMethod: models.MethodCOD, Currency: "inr", Total: decimal.NewFromInt(10)}
	paid := &models.Order{OrderID: "ORD-PAID", UserID: buyer, OrderStatus: models.OrderConfirmed, PaymentStatus: models.PaymentCompleted, PaymentMethod: models.MethodCard, Currency: "inr", Total: decimal.NewFromInt(10)}
	gone := &models.Order{OrderID: "ORD-GONE", UserID: buyer, OrderStatus: models.OrderCancelled, PaymentStatus: models.PaymentPending, PaymentMethod: models.MethodCard, Currency: "inr", Total: decimal.NewFromInt(10)}
	for _, o := range []*models.Order{cod, paid, gone} {
		require.NoError(t, f.st.CreateOrder(ctx, o))
	}

	_, err := f.payments.Initiate(ctx, owner, InitiateInput{Metadata: map[string]string{models.MetadataOrderID: "ORD-COD"}})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	for _, id := range []string{"ORD-PAID", "ORD-GONE"} {
		_, err := f.payments.Initiate(ctx, owner, InitiateInput{Metadata: map[string]string{models.MetadataOrderID: id}})
		assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition, id)
	}

	_, err = f.payments.Initiate(ctx, owner, InitiateInput{Metadata: map[string]string{models.MetadataOrderID: "ORD-NONE"}})
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestInitiateGatewayFailure(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t)
	f.gw.Err = errors.New("connection reset")

	_, err := f.payments.Initiate(context.Background(), owner, InitiateInput{
		Metadata: map[string]string{models.MetadataOrderID: order.OrderID},
	})
	assert.ErrorIs(t, err, apperrors.ErrGateway)
	assert.Equal(t, 502, apperrors.HTTPStatus(err))
	assert.Empty(t, f.order(t, order.OrderID).PaymentIntentID)
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t)
	intent := f.pay(t, order)

	got, err := f.payments.Verify(ctx, owner, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus, "an open intent changes nothing")

	_, err = f.payments.Verify(ctx, Actor{UserID: "intruder"}, intent.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.gw.Settle(intent.ID, models.IntentRequiresPaymentMethod, "card declined")
	require.NoError(t, err)
	got, err = f.payments.Verify(ctx, owner, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, "card declined", got.PaymentFailureReason)

	_, err = f.gw.Settle(intent.ID, models.IntentSucceeded, "")
	require.NoError(t, err)
	got, err = f.payments.Verify(ctx, owner, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, models.OrderConfirmed, got.OrderStatus)

	// the webhook arriving afterwards is a no-op
	res, err := f.deliver(t, "evt_after_verify", models.EventPaymentSucceeded, withStatus(intent, models.IntentSucceeded))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoop, res.Outcome)
	assert.Len(t, f.notificationsOf(models.NotifyPaymentConfirmed), 1)

	_, err = f.payments.GetIntent(ctx, owner, "pi_unknown")
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t)
	intent := f.pay(t, order)

	_, err := f.payments.Refund(ctx, admin, RefundInput{OrderID: order.OrderID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition, "nothing captured yet")

	_, err = f.gw.Settle(intent.ID, models.IntentSucceeded, "")
	require.NoError(t, err)
	_, err = f.deliver(t, "evt_paid", models.EventPaymentSucceeded, withStatus(intent, models.IntentSucceeded))
	require.NoError(t, err)

	_, err = f.payments.Refund(ctx, owner, RefundInput{OrderID: order.OrderID})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	tooMuch := decimal.NewFromInt(1000)
	_, err = f.payments.Refund(ctx, admin, RefundInput{OrderID: order.OrderID, Amount: &tooMuch})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	part := decimal.RequireFromString("95.50")
	refund, err := f.payments.Refund(ctx, admin, RefundInput{OrderID: order.OrderID, Amount: &part})
	require.NoError(t, err)
	assert.Equal(t, int64(9550), refund.Amount)

	got := f.order(t, order.OrderID)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, refund.ID, got.RefundID)
	require.NotNil(t, got.RefundAmount)
	assert.True(t, got.RefundAmount.Equal(part))
	assert.Len(t, f.notificationsOf(models.NotifyRefundProcessed), 1)

	_, err = f.payments.Refund(ctx, admin, RefundInput{OrderID: order.OrderID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition, "refunds happen once")
	assert.Len(t, f.gw.Refunds(), 1)
}
