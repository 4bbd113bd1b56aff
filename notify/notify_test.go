package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"shophub/models"
	"shophub/store/memstore"
	"shophub/utils"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSender struct {
	sent []utils.EmailMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg utils.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakePublisher struct {
	keys []string
	msgs []amqp.Publishing
	err  error
}

func (f *fakePublisher) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestEmailChannel(t *testing.T) {
	st := memstore.New()
	user := st.PutUser(models.User{Name: "Asha", Email: "asha@example.com"})
	sender := &fakeSender{}
	ch := NewEmailChannel(sender, st, discard)

	n := models.Notification{
		Kind:    models.NotifyOrderPlaced,
		OrderID: "ORD-1",
		UserID:  user.ID.Hex(),
		Data:    map[string]string{"total": "295.00", "currency": "inr"},
	}
	require.NoError(t, ch.Dispatch(context.Background(), n))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "asha@example.com", sender.sent[0].To)
	assert.Equal(t, "Order Confirmation", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Text, "295.00")

	t.Run("unknown user is dropped", func(t *testing.T) {
		n := n
		n.UserID = "nobody"
		assert.NoError(t, ch.Dispatch(context.Background(), n))
		assert.Len(t, sender.sent, 1)
	})

	t.Run("provider failure is retried", func(t *testing.T) {
		sender.err = errors.New("provider down")
		assert.Error(t, ch.Dispatch(context.Background(), n))
	})
}

func TestBrokerChannel(t *testing.T) {
	pub := &fakePublisher{}
	ch := newBrokerChannel(pub, "shophub.notifications", discard)

	n := models.Notification{
		DedupeKey: "ORD-1:payment_confirmed",
		Kind:      models.NotifyPaymentConfirmed,
		OrderID:   "ORD-1",
		UserID:    "u1",
	}
	require.NoError(t, ch.Dispatch(context.Background(), n))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "notification.payment_confirmed", pub.keys[0])
	assert.Equal(t, amqp.Persistent, pub.msgs[0].DeliveryMode)
	assert.Equal(t, "ORD-1:payment_confirmed", pub.msgs[0].MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[0].Body, &body))
	assert.Equal(t, "ORD-1", body["orderId"])

	pub.err = errors.New("channel closed")
	assert.Error(t, ch.Dispatch(context.Background(), n))
}

func TestFanOut(t *testing.T) {
	var calls int
	ok := DispatcherFunc(func(context.Context, models.Notification) error { calls++; return nil })
	bad := DispatcherFunc(func(context.Context, models.Notification) error { calls++; return errors.New("down") })

	require.NoError(t, FanOut{ok, NewLogChannel(discard)}.Dispatch(context.Background(), models.Notification{}))
	err := FanOut{bad, ok}.Dispatch(context.Background(), models.Notification{})
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 3, calls)
}
