package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"shophub/gateway"
	"shophub/models"
	"shophub/store"
	"shophub/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "whsec_test"
	buyer      = "buyer-1"
)

var (
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	owner   = Actor{UserID: buyer, Role: "user"}
	admin   = Actor{UserID: "admin-1", Role: models.RoleAdmin}
	address = models.Address{Street: "12 MG Road", City: "Bengaluru", State: "KA", ZipCode: "560001"}
)

type fixture struct {
	st       *memstore.Store
	gw       *gateway.Mock
	carts    *CartService
	promos   *PromotionEngine
	notifier *Notifier
	ledger   *OrderLedger
	webhooks *WebhookProcessor
	payments *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutProduct(models.Product{ID: "p1", Name: "Kettle", Price: decimal.NewFromInt(100)})
	st.PutProduct(models.Product{ID: "p2", Name: "Mug", Price: decimal.NewFromInt(60), DiscountPrice: decimal.NewFromInt(50)})

	gw := gateway.NewMock()
	carts := NewCartService(st, nil, st, discard)
	promos := NewPromotionEngine(st, discard)
	notifier := NewNotifier(st, discard)
	ledger := NewOrderLedger(st, carts, st, promos, notifier, LedgerConfig{
		Currency: "inr",
		TaxRate:  decimal.RequireFromString("0.18"),
	}, discard)
	ledger.clearWait = time.Millisecond

	return &fixture{
		st:       st,
		gw:       gw,
		carts:    carts,
		promos:   promos,
		notifier: notifier,
		ledger:   ledger,
		webhooks: NewWebhookProcessor(gw, testSecret, ledger, st, discard),
		payments: NewPaymentService(gw, ledger, time.Second, discard),
	}
}

// checkout fills the buyer's cart with 2 x p1 and 1 x p2 and places an order.
func (f *fixture) checkout(t *testing.T) *models.Order {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, buyer, "p1", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, buyer, "p2", 1)
	require.NoError(t, err)

	order, err := f.ledger.CreateOrder(ctx, owner, CreateOrderInput{
		ShippingAddress: address,
		PaymentMethod:   models.MethodCard,
	})
	require.NoError(t, err)
	return order
}

// pay opens an intent for order and returns it.
func (f *fixture) pay(t *testing.T, order *models.Order) *models.PaymentIntent {
	t.Helper()
	intent, err := f.payments.Initiate(context.Background(), owner, InitiateInput{
		Amount:   order.Total,
		Currency: "inr",
		Metadata: map[string]string{models.MetadataOrderID: order.OrderID},
	})
	require.NoError(t, err)
	return intent
}

// deliver signs and processes a webhook for intent.
func (f *fixture) deliver(t *testing.T, eventID, eventType string, intent models.PaymentIntent) (*WebhookResult, error) {
	t.Helper()
	payload, err := gateway.EventPayload(eventID, eventType, intent)
	require.NoError(t, err)
	return f.webhooks.Process(context.Background(), payload, gateway.SignPayload(payload, testSecret, time.Now()))
}

func (f *fixture) order(t *testing.T, id string) *models.Order {
	t.Helper()
	o, err := f.st.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) notificationsOf(kind models.NotificationKind) []models.Notification {
	var out []models.Notification
	for _, n := range f.st.Notifications() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func withStatus(intent *models.PaymentIntent, status string) models.PaymentIntent {
	cp := *intent
	cp.Status = status
	return cp
}

var errLedgerDown = errors.New("ledger unavailable")

// failingLedger fails Record until failures runs out.
type failingLedger struct {
	store.EventLedger
	failures int
}

func (l *failingLedger) Record(ctx context.Context, rec models.IdempotencyRecord) error {
	if l.failures > 0 {
		l.failures--
		return errLedgerDown
	}
	return l.EventLedger.Record(ctx, rec)
}
