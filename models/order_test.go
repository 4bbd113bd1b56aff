package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var allStatuses = []OrderStatus{
	OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
	OrderOutForDelivery, OrderDelivered, OrderCancelled, OrderReturned,
}

func TestCanTransitionTo_ForwardChain(t *testing.T) {
	chain := []OrderStatus{OrderPending, OrderConfirmed, OrderProcessing, OrderShipped, OrderOutForDelivery, OrderDelivered, OrderReturned}
	for i := 0; i < len(chain)-1; i++ {
		assert.True(t, chain[i].CanTransitionTo(chain[i+1]), "%s -> %s", chain[i], chain[i+1])
	}
}

func TestCanTransitionTo_NoBackwardOrSkip(t *testing.T) {
	assert.False(t, OrderConfirmed.CanTransitionTo(OrderPending))
	assert.False(t, OrderPending.CanTransitionTo(OrderShipped))
	assert.False(t, OrderShipped.CanTransitionTo(OrderCancelled))
	assert.False(t, OrderDelivered.CanTransitionTo(OrderCancelled))
	assert.False(t, OrderPending.CanTransitionTo(OrderPending))
}

func TestCanTransitionTo_TerminalStatesAreClosed(t *testing.T) {
	for _, from := range []OrderStatus{OrderCancelled, OrderReturned} {
		for _, to := range allStatuses {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestCancellable(t *testing.T) {
	for _, s := range allStatuses {
		want := s == OrderPending || s == OrderConfirmed
		assert.Equal(t, want, s.Cancellable(), s)
	}
}

func TestPaymentStatus_Settled(t *testing.T) {
	assert.True(t, PaymentCompleted.Settled())
	assert.True(t, PaymentRefunded.Settled())
	assert.False(t, PaymentPending.Settled())
	assert.False(t, PaymentFailed.Settled())
}

func TestMoneyHelpers(t *testing.T) {
	assert.Equal(t, "10.13", RoundMoney(decimal.RequireFromString("10.125")).StringFixed(2))
	assert.Equal(t, "45.00", Percent(decimal.NewFromInt(250), decimal.NewFromInt(18)).StringFixed(2))
	assert.Equal(t, int64(29500), ToMinorUnits(decimal.NewFromInt(295)))
	assert.Equal(t, int64(1999), ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.True(t, FromMinorUnits(1999).Equal(decimal.RequireFromString("19.99")))
}

func TestProductEffectivePrice(t *testing.T) {
	p := Product{Price: decimal.NewFromInt(100)}
	assert.True(t, p.EffectivePrice().Equal(decimal.NewFromInt(100)))
	p.DiscountPrice = decimal.NewFromInt(80)
	assert.True(t, p.EffectivePrice().Equal(decimal.NewFromInt(80)))
}

func TestWebhookEventVariants(t *testing.T) {
	for _, tc := range []struct {
		event WebhookEvent
		id    string
		typ   string
	}{
		{PaymentSucceededEvent{ID: "evt_1"}, "evt_1", EventPaymentSucceeded},
		{PaymentFailedEvent{ID: "evt_2"}, "evt_2", EventPaymentFailed},
		{UnrecognizedEvent{ID: "evt_3", Type: "customer.created"}, "evt_3", "customer.created"},
		{MalformedEvent{Type: EventPaymentFailed, Reason: "event id is missing"}, "", EventPaymentFailed},
	} {
		assert.Equal(t, tc.id, tc.event.EventID())
		assert.Equal(t, tc.typ, tc.event.EventType())
	}
	assert.Equal(t, PaymentStatus("failed"), PaymentFailed)
}
