// Package services holds the checkout business logic: carts, promotions, the
// order ledger, payments, webhook processing and the notification outbox.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shophub/apperrors"
	"shophub/models"
	"shophub/store"

	"golang.org/x/sync/singleflight"
)

// CartService is the per-user cart. Reads go through an optional cache;
// every write invalidates it.
type CartService struct {
	repo    store.CartRepository
	cache   store.CartCache
	catalog store.Catalog
	sfg     singleflight.Group // collapses concurrent cache misses per user
	logger  *slog.Logger

	// writes counts writes per user. A read only fills the cache when no
	// write landed between its repository read and its cache fill.
	mu     sync.Mutex
	writes map[string]uint64
}

func NewCartService(repo store.CartRepository, cache store.CartCache, catalog store.Catalog, logger *slog.Logger) *CartService {
	if cache == nil {
		cache = store.NoopCartCache{}
	}
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		logger:  logger.With("component", "cart"),
		writes:  make(map[string]uint64),
	}
}

// Get returns the user's cart. A user without a cart gets an empty one.
func (s *CartService) Get(ctx context.Context, userID string) (*models.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			s.logger.Warn("cart cache read failed", "user_id", userID, "error", err)
		}

		seen := s.writeCount(userID)
		cart, err = s.Current(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.fill(ctx, userID, cart, seen)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Cart), nil
}

// Current reads the cart from the repository, bypassing the cache. Checkout
// uses it so an order is never built from a cached copy.
func (s *CartService) Current(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		now := time.Now().UTC()
		return &models.Cart{UserID: userID, Items: []models.CartItem{}, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

// fill caches cart unless a write overtook the read it came from. A write
// that lands during Set is caught by the second check.
func (s *CartService) fill(ctx context.Context, userID string, cart *models.Cart, seen uint64) {
	if s.writeCount(userID) != seen {
		return
	}
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.logger.Warn("cart cache write failed", "user_id", userID, "error", err)
		return
	}
	if s.writeCount(userID) != seen {
		s.dropCached(userID)
	}
}

// AddItem adds quantity of productID at the catalog's current price, merging
// into an existing line.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*models.Cart, error) {
	if productID == "" {
		return nil, apperrors.Validation("missing_product", "productId is required")
	}
	if quantity < 1 {
		return nil, apperrors.Validation("invalid_quantity", "Quantity must be at least 1")
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	item := models.CartItem{ProductID: productID, Quantity: quantity, Price: product.EffectivePrice()}
	if err := s.repo.AddItem(ctx, userID, item); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	s.invalidate(userID)
	return s.Get(ctx, userID)
}

// UpdateItem sets the quantity of a line; a quantity of zero or less removes it.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*models.Cart, error) {
	if productID == "" {
		return nil, apperrors.Validation("missing_product", "productId is required")
	}
	if _, err := s.product(ctx, productID); err != nil {
		return nil, err
	}

	err := s.repo.SetQuantity(ctx, userID, productID, quantity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrItemNotInCart
	}
	if err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	s.invalidate(userID)
	return s.Get(ctx, userID)
}

// RemoveItem drops a line. Removing an absent line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*models.Cart, error) {
	if productID == "" {
		return nil, apperrors.Validation("missing_product", "productId is required")
	}
	if err := s.repo.RemoveItem(ctx, userID, productID); err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}
	s.invalidate(userID)
	return s.Get(ctx, userID)
}

// Clear empties the cart. It is idempotent.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	if err := s.repo.ClearCart(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.invalidate(userID)
	return nil
}

func (s *CartService) product(ctx context.Context, productID string) (*models.Product, error) {
	p, err := s.catalog.Product(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up product: %w", err)
	}
	return p, nil
}

// invalidate runs after every repository write.
func (s *CartService) invalidate(userID string) {
	s.mu.Lock()
	s.writes[userID]++
	s.mu.Unlock()
	// later reads must not join a flight that started before the write
	s.sfg.Forget(userID)
	s.dropCached(userID)
}

func (s *CartService) writeCount(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[userID]
}

func (s *CartService) dropCached(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart cache invalidate failed", "user_id", userID, "error", err)
	}
}
