package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationKind names the transition a notification reports.
type NotificationKind string

const (
	NotifyOrderPlaced            NotificationKind = "order_placed"
	NotifyPaymentConfirmed       NotificationKind = "payment_confirmed"
	NotifyPaymentFailed          NotificationKind = "payment_failed"
	NotifyOrderStatusChanged     NotificationKind = "order_status_changed"
	NotifyOrderCancelled         NotificationKind = "order_cancelled"
	NotifyReturnRequested        NotificationKind = "return_requested"
	NotifyRefundProcessed        NotificationKind = "refund_processed"
	NotifyReconciliationRequired NotificationKind = "reconciliation_required"
)

// NotificationState is the outbox lifecycle of a task.
type NotificationState string

const (
	NotificationPending    NotificationState = "pending"
	NotificationProcessing NotificationState = "processing"
	NotificationSent       NotificationState = "sent"
	NotificationDead       NotificationState = "dead"
)

// Notification is an outbox task. It is written at the point of a state
// transition and delivered later by the outbox worker.
type Notification struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	DedupeKey     string             `bson:"dedupe_key" json:"dedupeKey"`
	Kind          NotificationKind   `bson:"kind" json:"kind"`
	OrderID       string             `bson:"order_id" json:"orderId"`
	UserID        string             `bson:"user_id" json:"userId"`
	Data          map[string]string  `bson:"data,omitempty" json:"data,omitempty"`
	State         NotificationState  `bson:"state" json:"state"`
	Attempts      int                `bson:"attempts" json:"attempts"`
	NextAttemptAt time.Time          `bson:"next_attempt_at" json:"nextAttemptAt"`
	LockedUntil   time.Time          `bson:"locked_until,omitempty" json:"-"`
	LastError     string             `bson:"last_error,omitempty" json:"lastError,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	SentAt        *time.Time         `bson:"sent_at,omitempty" json:"sentAt,omitempty"`
}
