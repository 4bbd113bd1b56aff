package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"shophub/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCartCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCartCache(client), mr
}

func TestRedisCartCache_GetMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	cart, err := cache.Get(context.Background(), "user123")

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, cart)
}

func TestRedisCartCache_SetGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	cart := &models.Cart{
		UserID: "user123",
		Items: []models.CartItem{
			{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(100)},
		},
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, cache.Set(ctx, "user123", cart))
	assert.True(t, mr.Exists(cartKey("user123")))

	ttl := mr.TTL(cartKey("user123"))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)

	got, err := cache.Get(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestRedisCartCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cartKey("user123"), "{not json"))

	_, err := cache.Get(context.Background(), "user123")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCartCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	raw, _ := json.Marshal(models.Cart{UserID: "user123"})
	require.NoError(t, mr.Set(cartKey("user123"), string(raw)))

	require.NoError(t, cache.Delete(context.Background(), "user123"))
	assert.False(t, mr.Exists(cartKey("user123")))
}
