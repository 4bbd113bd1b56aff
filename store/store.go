// Package store holds the persistence ports used by the services and their
// MongoDB and Redis implementations.
package store

import (
	"context"
	"errors"
	"time"

	"shophub/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrPreconditionFailed = errors.New("record does not satisfy update precondition")
	ErrDuplicate          = errors.New("record already exists")
)

// CartRepository persists one cart per user.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	// AddItem merges item into the user's cart, summing quantities on an existing line.
	AddItem(ctx context.Context, userID string, item models.CartItem) error
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	// ClearCart empties the cart; clearing a missing or empty cart is not an error.
	ClearCart(ctx context.Context, userID string) error
}

// CartCache is a read-through cache in front of CartRepository.
type CartCache interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Set(ctx context.Context, userID string, cart *models.Cart) error
	Delete(ctx context.Context, userID string) error
}

// ErrCacheMiss is returned by CartCache.Get when nothing is cached.
var ErrCacheMiss = errors.New("cache miss")

// Catalog resolves product references. It is read-only.
type Catalog interface {
	Product(ctx context.Context, productID string) (*models.Product, error)
}

// OrderGuard is the precondition of a conditional order update. Empty
// fields do not constrain.
type OrderGuard struct {
	OrderStatuses   []models.OrderStatus
	PaymentStatuses []models.PaymentStatus
	NoReturnRequest bool
}

// OrderUpdate lists the fields a conditional update sets. Nil fields are left alone.
type OrderUpdate struct {
	OrderStatus          *models.OrderStatus
	PaymentStatus        *models.PaymentStatus
	PaymentFailureReason *string
	PaymentIntentID      *string
	RefundID             *string
	RefundAmount         *decimal.Decimal
	ReturnRequest        *models.ReturnRequest
	ReturnStatus         *string
	Reconciliation       *models.Reconciliation
	DeliveredAt          *time.Time
	UpdatedAt            time.Time
}

// OrderRepository persists orders. Every mutation is a single-record
// conditional update.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	// GetOrder accepts either the human-readable order id or the internal id.
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
	// UpdateOrder applies upd only if the stored order satisfies guard and
	// returns the updated order. It returns ErrNotFound when no order has id
	// and ErrPreconditionFailed when the order exists but the guard fails.
	UpdateOrder(ctx context.Context, id string, guard OrderGuard, upd OrderUpdate) (*models.Order, error)
}

// PromotionRepository persists promotions.
type PromotionRepository interface {
	CreatePromotion(ctx context.Context, p *models.Promotion) error
	// FindCoupon returns the active coupon-type promotion with code.
	FindCoupon(ctx context.Context, code string) (*models.Promotion, error)
	ListActive(ctx context.Context, now time.Time, typ models.PromotionType) ([]models.Promotion, error)
}

// EventLedger is the idempotency ledger of processed gateway events.
type EventLedger interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	// Record stores rec. Recording an event id twice is not an error.
	Record(ctx context.Context, rec models.IdempotencyRecord) error
}

// Outbox stores notification tasks until the worker delivers them.
type Outbox interface {
	// Enqueue stores n. A second task with the same dedupe key is dropped silently.
	Enqueue(ctx context.Context, n *models.Notification) error
	// ClaimDue leases the oldest due task until now+lease. It returns
	// ErrNotFound when nothing is due.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration) (*models.Notification, error)
	MarkSent(ctx context.Context, n *models.Notification, at time.Time) error
	// Reschedule records a failed attempt. A task moved to NotificationDead is not claimed again.
	Reschedule(ctx context.Context, n *models.Notification, state models.NotificationState, next time.Time, lastErr string) error
}

// Recipients resolves notification recipients from the user directory.
type Recipients interface {
	User(ctx context.Context, userID string) (*models.User, error)
}
