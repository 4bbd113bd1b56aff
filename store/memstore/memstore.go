// Package memstore keeps every store port in process memory. It backs local
// runs without MongoDB and the service and handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"shophub/models"
	"shophub/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store implements the store ports behind a single mutex. Records are copied
// on the way in and out so callers never share memory with the store.
type Store struct {
	mu sync.Mutex

	carts         map[string]*models.Cart
	products      map[string]models.Product
	users         map[string]models.User
	orders        map[primitive.ObjectID]*models.Order
	promotions    []*models.Promotion
	events        map[string]models.IdempotencyRecord
	notifications []*models.Notification
}

var (
	_ store.CartRepository      = (*Store)(nil)
	_ store.Catalog             = (*Store)(nil)
	_ store.OrderRepository     = (*Store)(nil)
	_ store.PromotionRepository = (*Store)(nil)
	_ store.EventLedger         = (*Store)(nil)
	_ store.Outbox              = (*Store)(nil)
	_ store.Recipients          = (*Store)(nil)
)

func New() *Store {
	return &Store{
		carts:    make(map[string]*models.Cart),
		products: make(map[string]models.Product),
		users:    make(map[string]models.User),
		orders:   make(map[primitive.ObjectID]*models.Order),
		events:   make(map[string]models.IdempotencyRecord),
	}
}

// PutProduct adds or replaces a catalog entry.
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutUser adds or replaces a user; an empty id is assigned.
func (s *Store) PutUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID.Hex()] = u
	return u
}

// Notifications returns a copy of every outbox task in insertion order.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, cloneNotification(n))
	}
	return out
}

// Events returns the recorded idempotency records.
func (s *Store) Events() []models.IdempotencyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.IdempotencyRecord, 0, len(s.events))
	for _, rec := range s.events {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
	return out
}

// Carts

func (s *Store) GetCart(_ context.Context, userID string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCart(cart), nil
}

func (s *Store) AddItem(_ context.Context, userID string, item models.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	cart, ok := s.carts[userID]
	if !ok {
		cart = &models.Cart{ID: primitive.NewObjectID(), UserID: userID, CreatedAt: now}
		s.carts[userID] = cart
	}
	cart.UpdatedAt = now
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	item.AddedAt = now
	cart.Items = append(cart.Items, item)
	return nil
}

func (s *Store) SetQuantity(_ context.Context, userID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID != productID {
			continue
		}
		if quantity <= 0 {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		} else {
			cart.Items[i].Quantity = quantity
		}
		cart.UpdatedAt = time.Now().UTC()
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) RemoveItem(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil
	}
	kept := cart.Items[:0]
	for _, it := range cart.Items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	cart.Items = kept
	cart.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ClearCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart, ok := s.carts[userID]; ok {
		cart.Items = []models.CartItem{}
		cart.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Catalog and users

func (s *Store) Product(_ context.Context, productID string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) User(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// Orders

func (s *Store) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderID == order.OrderID {
			return store.ErrDuplicate
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.lookupOrder(id)
	if o == nil {
		return nil, store.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := []models.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, *cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (s *Store) UpdateOrder(_ context.Context, id string, guard store.OrderGuard, upd store.OrderUpdate) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.lookupOrder(id)
	if o == nil {
		return nil, store.ErrNotFound
	}
	if !guardHolds(o, guard) {
		return nil, store.ErrPreconditionFailed
	}
	applyUpdate(o, upd)
	return cloneOrder(o), nil
}

func (s *Store) lookupOrder(id string) *models.Order {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		if o, ok := s.orders[oid]; ok {
			return o
		}
	}
	for _, o := range s.orders {
		if o.OrderID == id {
			return o
		}
	}
	return nil
}

func guardHolds(o *models.Order, g store.OrderGuard) bool {
	if len(g.OrderStatuses) > 0 && !contains(g.OrderStatuses, o.OrderStatus) {
		return false
	}
	if len(g.PaymentStatuses) > 0 && !contains(g.PaymentStatuses, o.PaymentStatus) {
		return false
	}
	if g.NoReturnRequest && o.ReturnRequest != nil {
		return false
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func applyUpdate(o *models.Order, upd store.OrderUpdate) {
	o.UpdatedAt = upd.UpdatedAt
	if upd.OrderStatus != nil {
		o.OrderStatus = *upd.OrderStatus
	}
	if upd.PaymentStatus != nil {
		o.PaymentStatus = *upd.PaymentStatus
	}
	if upd.PaymentFailureReason != nil {
		o.PaymentFailureReason = *upd.PaymentFailureReason
	}
	if upd.PaymentIntentID != nil {
		o.PaymentIntentID = *upd.PaymentIntentID
	}
	if upd.RefundID != nil {
		o.RefundID = *upd.RefundID
	}
	if upd.RefundAmount != nil {
		amount := *upd.RefundAmount
		o.RefundAmount = &amount
	}
	if upd.ReturnRequest != nil {
		rr := *upd.ReturnRequest
		o.ReturnRequest = &rr
	}
	if upd.ReturnStatus != nil && o.ReturnRequest != nil {
		o.ReturnRequest.Status = *upd.ReturnStatus
	}
	if upd.Reconciliation != nil {
		rec := *upd.Reconciliation
		o.Reconciliation = &rec
	}
	if upd.DeliveredAt != nil {
		at := *upd.DeliveredAt
		o.DeliveredAt = &at
	}
}

// Promotions

func (s *Store) CreatePromotion(_ context.Context, p *models.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Code != "" {
		for _, existing := range s.promotions {
			if existing.Code == p.Code {
				return store.ErrDuplicate
			}
		}
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	cp := *p
	cp.ProductIDs = append([]string(nil), p.ProductIDs...)
	s.promotions = append(s.promotions, &cp)
	return nil
}

func (s *Store) FindCoupon(_ context.Context, code string) (*models.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.promotions {
		if p.Code == code && p.Type == models.PromoCoupon && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListActive(_ context.Context, now time.Time, typ models.PromotionType) ([]models.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	promos := []models.Promotion{}
	for _, p := range s.promotions {
		if !p.IsActive || !p.ActiveAt(now) {
			continue
		}
		if typ != "" && p.Type != typ {
			continue
		}
		promos = append(promos, *p)
	}
	sort.Slice(promos, func(i, j int) bool { return promos[i].EndDate.Before(promos[j].EndDate) })
	return promos, nil
}

// Idempotency ledger

func (s *Store) Processed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *Store) Record(_ context.Context, rec models.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[rec.EventID]; !ok {
		s.events[rec.EventID] = rec
	}
	return nil
}

// Outbox

func (s *Store) Enqueue(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notifications {
		if existing.DedupeKey == n.DedupeKey {
			return nil
		}
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	cp := cloneNotification(n)
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *Store) ClaimDue(_ context.Context, now time.Time, lease time.Duration) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due *models.Notification
	for _, n := range s.notifications {
		claimable := (n.State == models.NotificationPending && !n.NextAttemptAt.After(now)) ||
			(n.State == models.NotificationProcessing && !n.LockedUntil.After(now))
		if claimable && (due == nil || n.NextAttemptAt.Before(due.NextAttemptAt)) {
			due = n
		}
	}
	if due == nil {
		return nil, store.ErrNotFound
	}
	due.State = models.NotificationProcessing
	due.LockedUntil = now.Add(lease)
	cp := cloneNotification(due)
	return &cp, nil
}

func (s *Store) MarkSent(_ context.Context, n *models.Notification, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.notification(n.ID)
	if stored == nil {
		return store.ErrNotFound
	}
	stored.State = models.NotificationSent
	stored.Attempts = n.Attempts
	stored.LastError = ""
	sentAt := at
	stored.SentAt = &sentAt
	return nil
}

func (s *Store) Reschedule(_ context.Context, n *models.Notification, state models.NotificationState, next time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.notification(n.ID)
	if stored == nil {
		return store.ErrNotFound
	}
	stored.State = state
	stored.Attempts = n.Attempts
	stored.NextAttemptAt = next
	stored.LastError = lastErr
	return nil
}

func (s *Store) notification(id primitive.ObjectID) *models.Notification {
	for _, n := range s.notifications {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func cloneCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = append([]models.CartItem{}, c.Items...)
	return &cp
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	if o.RefundAmount != nil {
		amount := *o.RefundAmount
		cp.RefundAmount = &amount
	}
	if o.ReturnRequest != nil {
		rr := *o.ReturnRequest
		cp.ReturnRequest = &rr
	}
	if o.Reconciliation != nil {
		rec := *o.Reconciliation
		cp.Reconciliation = &rec
	}
	if o.DeliveredAt != nil {
		at := *o.DeliveredAt
		cp.DeliveredAt = &at
	}
	return &cp
}

func cloneNotification(n *models.Notification) models.Notification {
	cp := *n
	if n.Data != nil {
		cp.Data = make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			cp.Data[k] = v
		}
	}
	if n.SentAt != nil {
		at := *n.SentAt
		cp.SentAt = &at
	}
	return cp
}
