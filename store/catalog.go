package store

import (
	"context"
	"errors"
	"fmt"

	"shophub/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoCatalog reads the products collection owned by the catalog service.
type MongoCatalog struct {
	collection *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{collection: db.Collection(ProductsCollection)}
}

type productDocument struct {
	ID             primitive.ObjectID `bson:"_id"`
	models.Product `bson:",inline"`
}

func (c *MongoCatalog) Product(ctx context.Context, productID string) (*models.Product, error) {
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc productDocument
	if err := c.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p := doc.Product
	p.ID = doc.ID.Hex()
	return &p, nil
}

// MongoRecipients reads the users collection owned by the auth service.
type MongoRecipients struct {
	collection *mongo.Collection
}

func NewMongoRecipients(db *mongo.Database) *MongoRecipients {
	return &MongoRecipients{collection: db.Collection(UsersCollection)}
}

func (r *MongoRecipients) User(ctx context.Context, userID string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrNotFound
	}

	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
