package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shophub/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOutbox keeps notification tasks in the notifications collection.
type MongoOutbox struct {
	collection *mongo.Collection
}

func NewMongoOutbox(db *mongo.Database) *MongoOutbox {
	return &MongoOutbox{collection: db.Collection(NotificationsCollection)}
}

func (o *MongoOutbox) Enqueue(ctx context.Context, n *models.Notification) error {
	res, err := o.collection.InsertOne(ctx, n)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid
	}
	return nil
}

// ClaimDue also reclaims tasks whose lease expired, which covers a worker
// that crashed mid-dispatch.
func (o *MongoOutbox) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) (*models.Notification, error) {
	filter := bson.M{"$or": []bson.M{
		{"state": models.NotificationPending, "next_attempt_at": bson.M{"$lte": now}},
		{"state": models.NotificationProcessing, "locked_until": bson.M{"$lte": now}},
	}}
	update := bson.M{"$set": bson.M{
		"state":        models.NotificationProcessing,
		"locked_until": now.Add(lease),
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}}).
		SetReturnDocument(options.After)

	var n models.Notification
	if err := o.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim notification: %w", err)
	}
	return &n, nil
}

func (o *MongoOutbox) MarkSent(ctx context.Context, n *models.Notification, at time.Time) error {
	_, err := o.collection.UpdateOne(ctx, bson.M{"_id": n.ID}, bson.M{"$set": bson.M{
		"state":      models.NotificationSent,
		"attempts":   n.Attempts,
		"sent_at":    at,
		"last_error": "",
	}})
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (o *MongoOutbox) Reschedule(ctx context.Context, n *models.Notification, state models.NotificationState, next time.Time, lastErr string) error {
	_, err := o.collection.UpdateOne(ctx, bson.M{"_id": n.ID}, bson.M{"$set": bson.M{
		"state":           state,
		"attempts":        n.Attempts,
		"next_attempt_at": next,
		"last_error":      lastErr,
	}})
	if err != nil {
		return fmt.Errorf("failed to reschedule notification: %w", err)
	}
	return nil
}
