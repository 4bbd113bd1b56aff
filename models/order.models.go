package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderProcessing     OrderStatus = "processing"
	OrderShipped        OrderStatus = "shipped"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
	OrderReturned       OrderStatus = "returned"
)

// orderEdges lists every legal move. Anything absent is illegal, including
// any move out of cancelled or returned.
var orderEdges = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderConfirmed, OrderCancelled},
	OrderConfirmed:      {OrderProcessing, OrderCancelled},
	OrderProcessing:     {OrderShipped},
	OrderShipped:        {OrderOutForDelivery},
	OrderOutForDelivery: {OrderDelivered},
	OrderDelivered:      {OrderReturned},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
		OrderOutForDelivery, OrderDelivered, OrderCancelled, OrderReturned:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal edge from s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, to := range orderEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no payment-driven advance may touch the order.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCancelled || s == OrderReturned
}

// Cancellable reports whether a buyer may still cancel.
func (s OrderStatus) Cancellable() bool {
	return s == OrderPending || s == OrderConfirmed
}

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Settled reports whether the status is sticky: no later event may move it
// back to pending or failed.
func (s PaymentStatus) Settled() bool {
	return s == PaymentCompleted || s == PaymentRefunded
}

// PaymentMethod is how the buyer intends to pay.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodUPI    PaymentMethod = "upi"
	MethodWallet PaymentMethod = "wallet"
	MethodCOD    PaymentMethod = "cod"
	MethodEMI    PaymentMethod = "emi"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodWallet, MethodCOD, MethodEMI:
		return true
	}
	return false
}

// OrderItem is a line captured at order creation. Price never changes afterwards.
type OrderItem struct {
	ProductID string          `bson:"product_id" json:"productId"`
	Name      string          `bson:"name,omitempty" json:"name,omitempty"`
	Quantity  int             `bson:"quantity" json:"quantity"`
	Price     decimal.Decimal `bson:"price" json:"price"`
}

// LineTotal is price * quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Return request states.
const (
	ReturnPending  = "pending"
	ReturnApproved = "approved"
)

// ReturnRequest is the buyer's request to send a delivered order back.
type ReturnRequest struct {
	Status      string    `bson:"status" json:"status"`
	Reason      string    `bson:"reason" json:"reason"`
	RequestedAt time.Time `bson:"requested_at" json:"requestedAt"`
}

// Reconciliation flags an order whose payment was captured after it became
// terminal. An operator resolves it, usually with a refund.
type Reconciliation struct {
	Required   bool      `bson:"required" json:"required"`
	Reason     string    `bson:"reason" json:"reason"`
	IntentID   string    `bson:"intent_id,omitempty" json:"intentId,omitempty"`
	DetectedAt time.Time `bson:"detected_at" json:"detectedAt"`
}

// Order represents a user's order
type Order struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OrderID              string             `bson:"order_id" json:"orderId"`
	UserID               string             `bson:"user_id" json:"userId"`
	Items                []OrderItem        `bson:"items" json:"items"`
	ShippingAddress      Address            `bson:"shipping_address" json:"shippingAddress"`
	BillingAddress       Address            `bson:"billing_address" json:"billingAddress"`
	PaymentMethod        PaymentMethod      `bson:"payment_method" json:"paymentMethod"`
	PaymentStatus        PaymentStatus      `bson:"payment_status" json:"paymentStatus"`
	OrderStatus          OrderStatus        `bson:"order_status" json:"orderStatus"`
	PaymentIntentID      string             `bson:"payment_intent_id,omitempty" json:"paymentIntentId,omitempty"`
	PaymentFailureReason string             `bson:"payment_failure_reason,omitempty" json:"paymentFailureReason,omitempty"`
	RefundID             string             `bson:"refund_id,omitempty" json:"refundId,omitempty"`
	RefundAmount         *decimal.Decimal   `bson:"refund_amount,omitempty" json:"refundAmount,omitempty"`
	Currency             string             `bson:"currency" json:"currency"`
	Subtotal             decimal.Decimal    `bson:"subtotal" json:"subtotal"`
	Tax                  decimal.Decimal    `bson:"tax" json:"tax"`
	ShippingCost         decimal.Decimal    `bson:"shipping_cost" json:"shippingCost"`
	Discount             decimal.Decimal    `bson:"discount" json:"discount"`
	Total                decimal.Decimal    `bson:"total" json:"total"`
	CouponCode           string             `bson:"coupon_code,omitempty" json:"couponCode,omitempty"`
	ReturnRequest        *ReturnRequest     `bson:"return_request,omitempty" json:"returnRequest,omitempty"`
	Reconciliation       *Reconciliation    `bson:"reconciliation,omitempty" json:"reconciliation,omitempty"`
	DeliveredAt          *time.Time         `bson:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt            time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt            time.Time          `bson:"updated_at" json:"updatedAt"`
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID != "" && o.UserID == userID
}
