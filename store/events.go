package store

import (
	"context"
	"errors"
	"fmt"

	"shophub/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoEventLedger is the append-only idempotency ledger. The gateway event
// id is the document _id, so the primary key enforces at-most-once recording.
type MongoEventLedger struct {
	collection *mongo.Collection
}

func NewMongoEventLedger(db *mongo.Database) *MongoEventLedger {
	return &MongoEventLedger{collection: db.Collection(EventsCollection)}
}

func (l *MongoEventLedger) Processed(ctx context.Context, eventID string) (bool, error) {
	err := l.collection.FindOne(ctx, bson.M{"_id": eventID}).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up event %s: %w", eventID, err)
}

func (l *MongoEventLedger) Record(ctx context.Context, rec models.IdempotencyRecord) error {
	if _, err := l.collection.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to record event %s: %w", rec.EventID, err)
	}
	return nil
}
