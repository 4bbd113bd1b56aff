package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shophub/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCartRepository stores one document per user in the carts collection.
type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{collection: db.Collection(CartsCollection)}
}

func (r *MongoCartRepository) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// AddItem increments the matching line in place, or pushes a new line. The
// $ne guard keeps two sessions from pushing the same product twice; the
// unique user_id index turns a racing upsert into a retry of the merge.
func (r *MongoCartRepository) AddItem(ctx context.Context, userID string, item models.CartItem) error {
	now := time.Now().UTC()
	item.AddedAt = now

	for attempt := 0; attempt < 3; attempt++ {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items.product_id": item.ProductID},
			bson.M{
				"$inc": bson.M{"items.$.quantity": item.Quantity},
				"$set": bson.M{"updated_at": now},
			})
		if err != nil {
			return fmt.Errorf("failed to merge cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		_, err = r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items.product_id": bson.M{"$ne": item.ProductID}},
			bson.M{
				"$push":        bson.M{"items": item},
				"$set":         bson.M{"updated_at": now},
				"$setOnInsert": bson.M{"created_at": now},
			},
			options.Update().SetUpsert(true))
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add cart item: %w", err)
		}
	}
	return fmt.Errorf("failed to add cart item: cart changed concurrently")
}

func (r *MongoCartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	filter := bson.M{"user_id": userID, "items.product_id": productID}

	var update bson.M
	if quantity <= 0 {
		update = bson.M{
			"$pull": bson.M{"items": bson.M{"product_id": productID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		}
	} else {
		update = bson.M{"$set": bson.M{
			"items.$.quantity": quantity,
			"updated_at":       time.Now().UTC(),
		}}
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoCartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"product_id": productID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	return nil
}

func (r *MongoCartRepository) ClearCart(ctx context.Context, userID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"items": []models.CartItem{}, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
