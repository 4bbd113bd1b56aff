package store

import (
	"testing"

	"shophub/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDecimalCodec_StoresDecimal128(t *testing.T) {
	reg := NewRegistry()
	item := models.OrderItem{ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("19.99")}

	raw, err := bson.MarshalWithRegistry(reg, item)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	_, isDecimal := doc["price"].(primitive.Decimal128)
	assert.True(t, isDecimal, "price should be stored as Decimal128, got %T", doc["price"])

	var back models.OrderItem
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &back))
	assert.True(t, back.Price.Equal(item.Price))
}

func TestDecimalCodec_DecodesLegacyNumbers(t *testing.T) {
	reg := NewRegistry()
	raw, err := bson.Marshal(bson.M{"name": "mug", "price": 249.5, "discount_price": int32(199)})
	require.NoError(t, err)

	var p models.Product
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &p))
	assert.Equal(t, "249.5", p.Price.String())
	assert.Equal(t, "199", p.DiscountPrice.String())
}
