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

// MongoPromotionRepository stores promotions and coupons.
type MongoPromotionRepository struct {
	collection *mongo.Collection
}

func NewMongoPromotionRepository(db *mongo.Database) *MongoPromotionRepository {
	return &MongoPromotionRepository{collection: db.Collection(PromotionsCollection)}
}

func (r *MongoPromotionRepository) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	res, err := r.collection.InsertOne(ctx, p)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create promotion: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = oid
	}
	return nil
}

func (r *MongoPromotionRepository) FindCoupon(ctx context.Context, code string) (*models.Promotion, error) {
	var p models.Promotion
	filter := bson.M{"code": code, "type": models.PromoCoupon, "is_active": true}
	if err := r.collection.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find coupon: %w", err)
	}
	return &p, nil
}

func (r *MongoPromotionRepository) ListActive(ctx context.Context, now time.Time, typ models.PromotionType) ([]models.Promotion, error) {
	filter := bson.M{
		"is_active":  true,
		"start_date": bson.M{"$lte": now},
		"end_date":   bson.M{"$gte": now},
	}
	if typ != "" {
		filter["type"] = typ
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "end_date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	defer cursor.Close(ctx)

	promos := []models.Promotion{}
	if err := cursor.All(ctx, &promos); err != nil {
		return nil, fmt.Errorf("failed to decode promotions: %w", err)
	}
	return promos, nil
}
