package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shophub/apperrors"
	"shophub/models"
	"shophub/store"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller of a ledger operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func (a Actor) canSee(o *models.Order) bool { return a.IsAdmin() || o.OwnedBy(a.UserID) }

// LedgerConfig holds the pricing inputs computed outside checkout.
type LedgerConfig struct {
	Currency    string
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

// cartStore is what the ledger needs from the cart. Current must read the
// repository, not a cache.
type cartStore interface {
	Current(ctx context.Context, userID string) (*models.Cart, error)
	Clear(ctx context.Context, userID string) error
}

const (
	// mutateAttempts bounds re-reads after a lost conditional update.
	mutateAttempts = 3
	clearAttempts  = 3
)

// errNoChange tells mutate the order already reflects the request.
var errNoChange = errors.New("no change")

// OrderLedger owns the order state machine. Every change is a single
// conditional update on the order record, guarded by the state the decision
// was made on.
type OrderLedger struct {
	orders     store.OrderRepository
	carts      cartStore
	catalog    store.Catalog
	promotions *PromotionEngine
	notifier   *Notifier
	cfg        LedgerConfig
	logger     *slog.Logger
	now        func() time.Time
	clearWait  time.Duration
}

func NewOrderLedger(orders store.OrderRepository, carts cartStore, catalog store.Catalog, promotions *PromotionEngine, notifier *Notifier, cfg LedgerConfig, logger *slog.Logger) *OrderLedger {
	return &OrderLedger{
		orders:     orders,
		carts:      carts,
		catalog:    catalog,
		promotions: promotions,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With("component", "order_ledger"),
		now:        func() time.Time { return time.Now().UTC() },
		clearWait:  100 * time.Millisecond,
	}
}

// CreateOrderInput is the checkout request.
type CreateOrderInput struct {
	ShippingAddress models.Address
	BillingAddress  models.Address
	PaymentMethod   models.PaymentMethod
	CouponCode      string
}

// CreateOrder converts the caller's cart into a pending order. Prices are
// snapshotted from the catalog now and never re-read. The cart is cleared
// only after the order is stored.
func (l *OrderLedger) CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (*models.Order, error) {
	if !in.ShippingAddress.Complete() {
		return nil, apperrors.Validation("invalid_address", "Shipping address requires street, city and zipCode")
	}
	if in.BillingAddress == (models.Address{}) {
		in.BillingAddress = in.ShippingAddress
	} else if !in.BillingAddress.Complete() {
		return nil, apperrors.Validation("invalid_address", "Billing address requires street, city and zipCode")
	}
	in.PaymentMethod = models.PaymentMethod(strings.ToLower(string(in.PaymentMethod)))
	if !in.PaymentMethod.Valid() {
		return nil, apperrors.Validation("invalid_payment_method", "Invalid payment method")
	}

	cart, err := l.carts.Current(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, apperrors.ErrEmptyCart
	}

	items := make([]models.OrderItem, 0, len(cart.Items))
	subtotal := decimal.Zero
	for _, line := range cart.Items {
		product, err := l.catalog.Product(ctx, line.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.ErrProductNotFound.WithMessage(fmt.Sprintf("Product %s not found", line.ProductID))
		}
		if err != nil {
			return nil, fmt.Errorf("look up product: %w", err)
		}
		item := models.OrderItem{
			ProductID: line.ProductID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Price:     models.RoundMoney(product.EffectivePrice()),
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = models.RoundMoney(subtotal)

	now := l.now()
	discount := decimal.Zero
	code := strings.TrimSpace(in.CouponCode)
	if code != "" {
		res, err := l.promotions.ApplyCoupon(ctx, code, subtotal, now)
		if err != nil {
			return nil, err
		}
		discount = res.DiscountAmount
	}

	tax := models.RoundMoney(subtotal.Mul(l.cfg.TaxRate))
	shipping := models.RoundMoney(l.cfg.ShippingFee)
	total := models.RoundMoney(subtotal.Add(tax).Add(shipping).Sub(discount))
	if total.IsNegative() {
		total = decimal.Zero
	}

	order := &models.Order{
		OrderID:         "ORD-" + ulid.Make().String(),
		UserID:          actor.UserID,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		OrderStatus:     models.OrderPending,
		Currency:        l.cfg.Currency,
		Subtotal:        subtotal,
		Tax:             tax,
		ShippingCost:    shipping,
		Discount:        discount,
		Total:           total,
		CouponCode:      code,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}
	l.logger.Info("order created", "order_id", order.OrderID, "user_id", order.UserID, "total", order.Total.StringFixed(2))

	l.clearCart(ctx, actor.UserID, order.OrderID)
	l.notify(ctx, order.OrderID+":"+string(models.NotifyOrderPlaced), models.NotifyOrderPlaced, order, nil)
	return order, nil
}

// clearCart retries the clear; the order stands even if every attempt fails.
func (l *OrderLedger) clearCart(ctx context.Context, userID, orderID string) {
	wait := l.clearWait
	for attempt := 1; attempt <= clearAttempts; attempt++ {
		err := l.carts.Clear(ctx, userID)
		if err == nil {
			return
		}
		if attempt == clearAttempts {
			l.logger.Error("failed to clear cart after order", "order_id", orderID, "user_id", userID, "error", err)
			return
		}
		l.logger.Warn("cart clear failed, retrying", "order_id", orderID, "attempt", attempt, "error", err)
		select {
		case <-time.After(wait):
			wait *= 2
		case <-ctx.Done():
			l.logger.Error("cart clear abandoned", "order_id", orderID, "error", ctx.Err())
			return
		}
	}
}

// GetOrder returns an order the actor may see.
func (l *OrderLedger) GetOrder(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	o, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canSee(o) {
		return nil, apperrors.ErrForbidden
	}
	return o, nil
}

// ListOrders returns the actor's orders, newest first.
func (l *OrderLedger) ListOrders(ctx context.Context, actor Actor) ([]models.Order, error) {
	orders, err := l.orders.ListOrders(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// CancelOrder cancels a pending or confirmed order.
func (l *OrderLedger) CancelOrder(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	cancelled := models.OrderCancelled
	o, _, err := l.mutate(ctx, id, func(o *models.Order) (store.OrderGuard, store.OrderUpdate, error) {
		if !actor.canSee(o) {
			return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrForbidden
		}
		if !o.OrderStatus.Cancellable() {
			return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrInvalidStateTransition.WithMessage("Cannot cancel order in current status")
		}
		return store.OrderGuard{OrderStatuses: []models.OrderStatus{o.OrderStatus}},
			store.OrderUpdate{OrderStatus: &cancelled}, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("order cancelled", "order_id", o.OrderID, "payment_status", o.PaymentStatus)
	l.notify(ctx, o.OrderID+":"+string(models.NotifyOrderCancelled), models.NotifyOrderCancelled, o, map[string]string{
		"paymentStatus": string(o.PaymentStatus),
	})
	return o, nil
}

// RequestReturn opens a return request on a delivered order.
func (l *OrderLedger) RequestReturn(ctx context.Context, actor Actor, id, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("missing_reason", "reason is required")
	}
	o, _, err := l.mutate(ctx, id, func(o *models.Order) (store.OrderGuard, store.OrderUpdate, error) {
		if !actor.canSee(o) {
			return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrForbidden
		}
		if o.OrderStatus != models.OrderDelivered {
			return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrInvalidStateTransition.WithMessage("Only delivered orders can be returned")
		}
		if o.ReturnRequest != nil {
			return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrInvalidStateTransition.WithMessage("Return already requested")
		}
		rr := models.ReturnRequest{Status: models.ReturnPending, Reason: reason, RequestedAt: l.now()}
		return store.OrderGuard{OrderStatuses: []models.OrderStatus{models.OrderDelivered}, NoReturnRequest: true},
			store.OrderUpdate{ReturnRequest: &rr}, nil
	})
	if err != nil {
		return nil, err
	}
	l.notify(ctx, o.OrderID+":"+string(models.NotifyReturnRequested), models.NotifyReturnRequested, o, map[string]string{"reason": reason})
	return o, nil
}

// UpdateStatus moves an order one legal step forward. Admin only.
func (l *OrderLedger) UpdateStatus(ctx context.Context, actor Actor, id string, next models.OrderStatus) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	if !next.Valid() {
		return nil, apperrors.Validation("invalid_status", "Invalid order status")
	}
	o, _, err := l.mutate(ctx, id, func(o *models.Order) (store.OrderGuard, store.OrderUpdate, error) {
		if !o.OrderStatus.CanTransitionTo(next) {
			return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrInvalidStateTransition.WithMessage(
				fmt.Sprintf("Cannot move order from %s to %s", o.OrderStatus, next))
		}
		guard := store.OrderGuard{OrderStatuses: []models.OrderStatus{o.OrderStatus}}
		upd := store.OrderUpdate{OrderStatus: &next}
		switch next {
		case models.OrderDelivered:
			at := l.now()
			upd.DeliveredAt = &at
		case models.OrderReturned:
			if o.ReturnRequest == nil || o.ReturnRequest.Status != models.ReturnPending {
				return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrInvalidStateTransition.WithMessage("No pending return request")
			}
			approved := models.ReturnApproved
			upd.ReturnStatus = &approved
		}
		return guard, upd, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("order status updated", "order_id", o.OrderID, "status", o.OrderStatus)
	kind := models.NotifyOrderStatusChanged
	if next == models.OrderCancelled {
		kind = models.NotifyOrderCancelled
	}
	l.notify(ctx, o.OrderID+":"+string(kind)+":"+string(next), kind, o, map[string]string{"status": string(next)})
	return o, nil
}

// PaymentResult is a settled outcome reported by the gateway.
type PaymentResult struct {
	Status   models.PaymentStatus
	Reason   string
	IntentID string
	// Source identifies what reported the result (a gateway event id or an
	// intent poll) and keys failure notifications.
	Source string
}

// PaymentOutcome describes what ApplyPaymentResult did.
type PaymentOutcome struct {
	Order *models.Order
	// Changed is false when the order already reflected the result.
	Changed bool
	// Reconcile is set when a capture landed on a cancelled or returned order.
	Reconcile bool
}

// ApplyPaymentResult records a payment outcome on the order. Completed and
// refunded are sticky. A completed result confirms a pending order, leaves a
// later status alone, and never revives a cancelled or returned order; such
// orders are flagged for manual reconciliation instead.
func (l *OrderLedger) ApplyPaymentResult(ctx context.Context, orderID string, res PaymentResult) (*PaymentOutcome, error) {
	if res.Status != models.PaymentCompleted && res.Status != models.PaymentFailed {
		return nil, apperrors.Validation("invalid_payment_status", "Unsupported payment result")
	}

	reconcile := false
	o, changed, err := l.mutate(ctx, orderID, func(o *models.Order) (store.OrderGuard, store.OrderUpdate, error) {
		reconcile = false
		if o.PaymentStatus.Settled() {
			return store.OrderGuard{}, store.OrderUpdate{}, errNoChange
		}
		guard := store.OrderGuard{
			OrderStatuses:   []models.OrderStatus{o.OrderStatus},
			PaymentStatuses: []models.PaymentStatus{o.PaymentStatus},
		}
		status := res.Status
		upd := store.OrderUpdate{PaymentStatus: &status}

		if res.Status == models.PaymentFailed {
			if res.IntentID != "" && o.PaymentIntentID != "" && res.IntentID != o.PaymentIntentID {
				// a superseded attempt failed; the current one is still open
				return store.OrderGuard{}, store.OrderUpdate{}, errNoChange
			}
			reason := res.Reason
			if reason == "" {
				reason = "Payment failed"
			}
			upd.PaymentFailureReason = &reason
			return guard, upd, nil
		}

		empty := ""
		upd.PaymentFailureReason = &empty
		if res.IntentID != "" && res.IntentID != o.PaymentIntentID {
			intentID := res.IntentID
			upd.PaymentIntentID = &intentID
		}
		switch {
		case o.OrderStatus.IsTerminal():
			reconcile = true
			upd.Reconciliation = &models.Reconciliation{
				Required:   true,
				Reason:     fmt.Sprintf("payment captured after order was %s", o.OrderStatus),
				IntentID:   res.IntentID,
				DetectedAt: l.now(),
			}
		case o.OrderStatus == models.OrderPending:
			confirmed := models.OrderConfirmed
			upd.OrderStatus = &confirmed
		}
		return guard, upd, nil
	})
	if err != nil {
		return nil, err
	}

	out := &PaymentOutcome{Order: o, Changed: changed, Reconcile: reconcile}
	log := l.logger.With("order_id", o.OrderID, "payment_status", o.PaymentStatus, "order_status", o.OrderStatus, "source", res.Source)
	switch {
	case !changed:
		log.Info("payment result already applied", "result", res.Status)
	case reconcile:
		log.Warn("payment captured on terminal order, reconciliation required", "intent_id", res.IntentID)
	default:
		log.Info("payment result applied", "result", res.Status)
	}

	// Completed-side notifications are keyed per order, so re-enqueueing on a
	// repeated result is harmless and covers a crash after the update.
	if res.Status == models.PaymentCompleted && o.PaymentStatus.Settled() {
		if o.Reconciliation != nil && o.Reconciliation.Required {
			out.Reconcile = true
			l.notify(ctx, o.OrderID+":"+string(models.NotifyReconciliationRequired), models.NotifyReconciliationRequired, o, map[string]string{
				"reason":   o.Reconciliation.Reason,
				"intentId": o.Reconciliation.IntentID,
			})
		} else {
			l.notify(ctx, o.OrderID+":"+string(models.NotifyPaymentConfirmed), models.NotifyPaymentConfirmed, o, nil)
		}
	}
	if res.Status == models.PaymentFailed && changed {
		l.notify(ctx, o.OrderID+":"+string(models.NotifyPaymentFailed)+":"+res.Source, models.NotifyPaymentFailed, o, map[string]string{
			"reason": o.PaymentFailureReason,
		})
	}
	return out, nil
}

// AttachPaymentIntent links a freshly created intent to an unpaid order.
func (l *OrderLedger) AttachPaymentIntent(ctx context.Context, actor Actor, id, intentID string) (*models.Order, error) {
	o, _, err := l.mutate(ctx, id, func(o *models.Order) (store.OrderGuard, store.OrderUpdate, error) {
		if err := payable(actor, o); err != nil {
			return store.OrderGuard{}, store.OrderUpdate{}, err
		}
		guard := store.OrderGuard{
			OrderStatuses:   []models.OrderStatus{o.OrderStatus},
			PaymentStatuses: []models.PaymentStatus{o.PaymentStatus},
		}
		return guard, store.OrderUpdate{PaymentIntentID: &intentID}, nil
	})
	return o, err
}

// payable reports why actor may not start a payment for o.
func payable(actor Actor, o *models.Order) error {
	if !actor.canSee(o) {
		return apperrors.ErrForbidden
	}
	if o.PaymentStatus.Settled() {
		return apperrors.ErrInvalidStateTransition.WithMessage("Order is already paid")
	}
	if o.OrderStatus.IsTerminal() {
		return apperrors.ErrInvalidStateTransition.WithMessage(fmt.Sprintf("Order is %s", o.OrderStatus))
	}
	return nil
}

// MarkRefunded records a refund issued by the gateway on a paid order.
func (l *OrderLedger) MarkRefunded(ctx context.Context, id string, refund *models.Refund, amount decimal.Decimal) (*models.Order, error) {
	o, _, err := l.mutate(ctx, id, func(o *models.Order) (store.OrderGuard, store.OrderUpdate, error) {
		if o.PaymentStatus != models.PaymentCompleted {
			return store.OrderGuard{}, store.OrderUpdate{}, apperrors.ErrInvalidStateTransition.WithMessage("Only completed payments can be refunded")
		}
		refunded := models.PaymentRefunded
		refundID := refund.ID
		upd := store.OrderUpdate{PaymentStatus: &refunded, RefundID: &refundID, RefundAmount: &amount}
		if o.Reconciliation != nil && o.Reconciliation.Required {
			resolved := *o.Reconciliation
			resolved.Required = false
			upd.Reconciliation = &resolved
		}
		return store.OrderGuard{PaymentStatuses: []models.PaymentStatus{models.PaymentCompleted}}, upd, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("order refunded", "order_id", o.OrderID, "refund_id", refund.ID, "amount", amount.StringFixed(2))
	l.notify(ctx, o.OrderID+":"+string(models.NotifyRefundProcessed)+":"+refund.ID, models.NotifyRefundProcessed, o, map[string]string{
		"refundAmount": amount.StringFixed(2),
	})
	return o, nil
}

func (l *OrderLedger) load(ctx context.Context, id string) (*models.Order, error) {
	o, err := l.orders.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

// mutate reads the order, lets decide choose a guarded update and applies
// it. A lost race re-reads and decides again, so the loser sees the new
// state and fails the transition instead of overwriting it.
func (l *OrderLedger) mutate(ctx context.Context, id string, decide func(o *models.Order) (store.OrderGuard, store.OrderUpdate, error)) (*models.Order, bool, error) {
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		o, err := l.load(ctx, id)
		if err != nil {
			return nil, false, err
		}
		guard, upd, err := decide(o)
		if errors.Is(err, errNoChange) {
			return o, false, nil
		}
		if err != nil {
			return nil, false, err
		}

		upd.UpdatedAt = l.now()
		updated, err := l.orders.UpdateOrder(ctx, o.OrderID, guard, upd)
		switch {
		case err == nil:
			return updated, true, nil
		case errors.Is(err, store.ErrPreconditionFailed):
			l.logger.Debug("order changed concurrently, re-reading", "order_id", o.OrderID, "attempt", attempt+1)
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil, false, apperrors.ErrOrderNotFound
		default:
			return nil, false, fmt.Errorf("update order: %w", err)
		}
	}
	return nil, false, apperrors.ErrInvalidStateTransition.WithMessage("Order changed concurrently, retry")
}

func (l *OrderLedger) notify(ctx context.Context, key string, kind models.NotificationKind, o *models.Order, data map[string]string) {
	if data == nil {
		data = map[string]string{}
	}
	data["total"] = o.Total.StringFixed(2)
	data["currency"] = o.Currency
	if _, ok := data["status"]; !ok {
		data["status"] = string(o.OrderStatus)
	}
	_ = l.notifier.Enqueue(ctx, key, kind, o, data)
}
