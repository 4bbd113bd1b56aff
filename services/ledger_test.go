package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shophub/apperrors"
	"shophub/gateway"
	"shophub/models"
	"shophub/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderSnapshotsPrices(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t)

	require.Len(t, order.Items, 2)
	assert.True(t, order.Items[1].Price.Equal(decimal.NewFromInt(50)), "discount price is used")

	// a later catalog change does not touch the stored order
	f.st.PutProduct(models.Product{ID: "p1", Name: "Kettle", Price: decimal.NewFromInt(500)})
	got, err := f.ledger.GetOrder(context.Background(), owner, order.OrderID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(295)))

	var sum decimal.Decimal
	for _, it := range got.Items {
		sum = sum.Add(it.LineTotal())
	}
	assert.True(t, got.Total.Equal(sum.Add(got.Tax).Add(got.ShippingCost).Sub(got.Discount)))
	assert.Len(t, f.notificationsOf(models.NotifyOrderPlaced), 1)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateOrder(ctx, owner, CreateOrderInput{ShippingAddress: address, PaymentMethod: models.MethodCard})
	assert.ErrorIs(t, err, apperrors.ErrEmptyCart)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	_, err = f.carts.AddItem(ctx, buyer, "p1", 1)
	require.NoError(t, err)

	_, err = f.ledger.CreateOrder(ctx, owner, CreateOrderInput{ShippingAddress: models.Address{City: "Pune"}, PaymentMethod: models.MethodCard})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	_, err = f.ledger.CreateOrder(ctx, owner, CreateOrderInput{ShippingAddress: address, PaymentMethod: "crypto"})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	cart, err := f.carts.Get(ctx, buyer)
	require.NoError(t, err)
	assert.False(t, cart.IsEmpty(), "a rejected checkout keeps the cart")
}

func TestCreateOrderWithCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, f.promos.CreatePromotion(ctx, &models.Promotion{
		Title: "SAVE10", Code: "SAVE10", Type: models.PromoCoupon, Discount: decimal.NewFromInt(10),
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
	}))
	require.NoError(t, f.promos.CreatePromotion(ctx, &models.Promotion{
		Title: "OLD", Code: "OLD", Type: models.PromoCoupon, Discount: decimal.NewFromInt(50),
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-24 * time.Hour),
	}))

	_, err := f.carts.AddItem(ctx, buyer, "p1", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, buyer, "p2", 1)
	require.NoError(t, err)

	_, err = f.ledger.CreateOrder(ctx, owner, CreateOrderInput{ShippingAddress: address, PaymentMethod: models.MethodUPI, CouponCode: "OLD"})
	assert.ErrorIs(t, err, apperrors.ErrCouponExpired)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))

	order, err := f.ledger.CreateOrder(ctx, owner, CreateOrderInput{ShippingAddress: address, PaymentMethod: models.MethodUPI, CouponCode: "SAVE10"})
	require.NoError(t, err)
	assert.True(t, order.Discount.Equal(decimal.NewFromInt(25)))
	assert.True(t, order.Total.Equal(decimal.NewFromInt(270)))
	assert.Equal(t, "SAVE10", order.CouponCode)
}

type flakyCart struct {
	*CartService
	failures int
	clears   int
}

func (c *flakyCart) Clear(ctx context.Context, userID string) error {
	c.clears++
	if c.failures > 0 {
		c.failures--
		return errors.New("cart store unavailable")
	}
	return c.CartService.Clear(ctx, userID)
}

func TestCreateOrderRetriesCartClear(t *testing.T) {
	for _, tc := range []struct {
		name      string
		failures  int
		wantEmpty bool
	}{
		{"recovers", 2, true},
		{"gives up without rolling back", 5, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			carts := &flakyCart{CartService: f.carts, failures: tc.failures}
			f.ledger.carts = carts

			order := f.checkout(t)
			assert.Equal(t, models.OrderPending, f.order(t, order.OrderID).OrderStatus)
			assert.LessOrEqual(t, carts.clears, clearAttempts)

			cart, err := f.carts.Get(context.Background(), buyer)
			require.NoError(t, err)
			assert.Equal(t, tc.wantEmpty, cart.IsEmpty())
		})
	}
}

func TestCancelOrder(t *testing.T) {
	statuses := []models.OrderStatus{
		models.OrderPending, models.OrderConfirmed, models.OrderProcessing, models.OrderShipped,
		models.OrderOutForDelivery, models.OrderDelivered, models.OrderCancelled, models.OrderReturned,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			order := &models.Order{OrderID: "ORD-" + string(status), UserID: buyer, OrderStatus: status, PaymentStatus: models.PaymentPending}
			require.NoError(t, f.st.CreateOrder(ctx, order))

			got, err := f.ledger.CancelOrder(ctx, owner, order.OrderID)
			if status.Cancellable() {
				require.NoError(t, err)
				assert.Equal(t, models.OrderCancelled, got.OrderStatus)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
			assert.Equal(t, 409, apperrors.HTTPStatus(err))
			assert.Equal(t, "Cannot cancel order in current status", err.Error())
			assert.Equal(t, status, f.order(t, order.OrderID).OrderStatus)
		})
	}
}

func TestCancelOrderOwnership(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t)

	_, err := f.ledger.CancelOrder(context.Background(), Actor{UserID: "someone-else"}, order.OrderID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.ledger.CancelOrder(context.Background(), owner, "ORD-NOPE")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)

	_, err = f.ledger.CancelOrder(context.Background(), admin, order.OrderID)
	assert.NoError(t, err)
}

func TestConcurrentCancelHasOneWinner(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.CancelOrder(context.Background(), owner, order.OrderID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, f.notificationsOf(models.NotifyOrderCancelled), 1)
}

func TestCancelRacingPaymentNeverResurrects(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t)
	intent := f.pay(t, order)
	payload, err := gateway.EventPayload("evt_race", models.EventPaymentSucceeded, withStatus(intent, models.IntentSucceeded))
	require.NoError(t, err)
	signature := gateway.SignPayload(payload, testSecret, time.Now())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.ledger.CancelOrder(context.Background(), owner, order.OrderID)
	}()
	go func() {
		defer wg.Done()
		_, _ = f.webhooks.Process(context.Background(), payload, signature)
	}()
	wg.Wait()

	got := f.order(t, order.OrderID)
	assert.Equal(t, models.OrderCancelled, got.OrderStatus)
	assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
}

func TestUpdateStatusWalk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t)

	_, err := f.ledger.UpdateStatus(ctx, owner, order.OrderID, models.OrderConfirmed)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.ledger.UpdateStatus(ctx, admin, order.OrderID, models.OrderShipped)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)

	_, err = f.ledger.UpdateStatus(ctx, admin, order.OrderID, "teleported")
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	for _, next := range []models.OrderStatus{
		models.OrderConfirmed, models.OrderProcessing, models.OrderShipped,
		models.OrderOutForDelivery, models.OrderDelivered,
	} {
		got, err := f.ledger.UpdateStatus(ctx, admin, order.OrderID, next)
		require.NoError(t, err, "to %s", next)
		assert.Equal(t, next, got.OrderStatus)
	}
	got := f.order(t, order.OrderID)
	require.NotNil(t, got.DeliveredAt)

	_, err = f.ledger.UpdateStatus(ctx, admin, order.OrderID, models.OrderReturned)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition, "returns need a request first")

	_, err = f.ledger.UpdateStatus(ctx, admin, order.OrderID, models.OrderShipped)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition, "no backward moves")
	assert.Len(t, f.notificationsOf(models.NotifyOrderStatusChanged), 5)
}

func TestRequestReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := &models.Order{OrderID: "ORD-R", UserID: buyer, OrderStatus: models.OrderShipped, PaymentStatus: models.PaymentCompleted}
	require.NoError(t, f.st.CreateOrder(ctx, order))

	_, err := f.ledger.RequestReturn(ctx, owner, "ORD-R", "too small")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)

	delivered := models.OrderDelivered
	_, err = f.st.UpdateOrder(ctx, "ORD-R", store.OrderGuard{}, store.OrderUpdate{OrderStatus: &delivered})
	require.NoError(t, err)

	_, err = f.ledger.RequestReturn(ctx, owner, "ORD-R", "  ")
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	got, err := f.ledger.RequestReturn(ctx, owner, "ORD-R", "too small")
	require.NoError(t, err)
	require.NotNil(t, got.ReturnRequest)
	assert.Equal(t, models.ReturnPending, got.ReturnRequest.Status)
	assert.False(t, got.ReturnRequest.RequestedAt.IsZero())

	_, err = f.ledger.RequestReturn(ctx, owner, "ORD-R", "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)

	got, err = f.ledger.UpdateStatus(ctx, admin, "ORD-R", models.OrderReturned)
	require.NoError(t, err)
	assert.Equal(t, models.OrderReturned, got.OrderStatus)
	assert.Equal(t, models.ReturnApproved, got.ReturnRequest.Status)

	_, err = f.ledger.CancelOrder(ctx, owner, "ORD-R")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestApplyPaymentResultPastConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := &models.Order{OrderID: "ORD-S", UserID: buyer, OrderStatus: models.OrderShipped, PaymentStatus: models.PaymentPending}
	require.NoError(t, f.st.CreateOrder(ctx, order))

	out, err := f.ledger.ApplyPaymentResult(ctx, "ORD-S", PaymentResult{Status: models.PaymentCompleted, Source: "evt"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, models.OrderShipped, out.Order.OrderStatus)
	assert.Equal(t, models.PaymentCompleted, out.Order.PaymentStatus)

	_, err = f.ledger.ApplyPaymentResult(ctx, "ORD-S", PaymentResult{Status: models.PaymentPending})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	_, err = f.ledger.ApplyPaymentResult(ctx, "ORD-404", PaymentResult{Status: models.PaymentCompleted})
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}
