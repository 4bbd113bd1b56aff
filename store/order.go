package store

import (
	"context"
	"errors"
	"fmt"

	"shophub/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOrderRepository stores orders as self-contained documents.
type MongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{collection: db.Collection(OrdersCollection)}
}

// orderFilter matches the human-readable id, or the internal id when id is a
// valid ObjectID.
func orderFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"$or": []bson.M{{"_id": oid}, {"order_id": id}}}
	}
	return bson.M{"order_id": id}
}

func (r *MongoOrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	res, err := r.collection.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = oid
	}
	return nil
}

func (r *MongoOrderRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.collection.FindOne(ctx, orderFilter(id)).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *MongoOrderRepository) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (r *MongoOrderRepository) UpdateOrder(ctx context.Context, id string, guard OrderGuard, upd OrderUpdate) (*models.Order, error) {
	filter := orderFilter(id)
	if len(guard.OrderStatuses) > 0 {
		filter["order_status"] = bson.M{"$in": guard.OrderStatuses}
	}
	if len(guard.PaymentStatuses) > 0 {
		filter["payment_status"] = bson.M{"$in": guard.PaymentStatuses}
	}
	if guard.NoReturnRequest {
		filter["return_request"] = nil
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": updateFields(upd)}, opts).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	n, err := r.collection.CountDocuments(ctx, orderFilter(id))
	if err != nil {
		return nil, fmt.Errorf("failed to check order: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrPreconditionFailed
}

func updateFields(upd OrderUpdate) bson.M {
	set := bson.M{"updated_at": upd.UpdatedAt}
	if upd.OrderStatus != nil {
		set["order_status"] = *upd.OrderStatus
	}
	if upd.PaymentStatus != nil {
		set["payment_status"] = *upd.PaymentStatus
	}
	if upd.PaymentFailureReason != nil {
		set["payment_failure_reason"] = *upd.PaymentFailureReason
	}
	if upd.PaymentIntentID != nil {
		set["payment_intent_id"] = *upd.PaymentIntentID
	}
	if upd.RefundID != nil {
		set["refund_id"] = *upd.RefundID
	}
	if upd.RefundAmount != nil {
		set["refund_amount"] = *upd.RefundAmount
	}
	if upd.ReturnRequest != nil {
		set["return_request"] = *upd.ReturnRequest
	}
	if upd.ReturnStatus != nil {
		set["return_request.status"] = *upd.ReturnStatus
	}
	if upd.Reconciliation != nil {
		set["reconciliation"] = *upd.Reconciliation
	}
	if upd.DeliveredAt != nil {
		set["delivered_at"] = *upd.DeliveredAt
	}
	return set
}
