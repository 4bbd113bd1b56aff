package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shophub/models"

	"github.com/streadway/amqp"
)

// publisher is the part of *amqp.Channel the broker channel uses.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// BrokerChannel publishes notifications to a RabbitMQ topic exchange for the
// SMS and push consumers. Routing keys are notification.<kind>.
type BrokerChannel struct {
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	pub     publisher
	conn    *amqp.Connection
	connect func() (*amqp.Connection, publisher, error)
}

// DialBroker connects to url and declares exchange as a durable topic exchange.
func DialBroker(url, exchange string, logger *slog.Logger) (*BrokerChannel, error) {
	b := &BrokerChannel{
		exchange: exchange,
		logger:   logger.With("component", "notify_broker"),
		connect: func() (*amqp.Connection, publisher, error) {
			conn, err := amqp.Dial(url)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("failed to open channel: %w", err)
			}
			if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
				ch.Close()
				conn.Close()
				return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
			}
			return conn, ch, nil
		},
	}
	if _, err := b.channel(); err != nil {
		return nil, err
	}
	return b, nil
}

// newBrokerChannel wires a ready publisher; used by tests.
func newBrokerChannel(pub publisher, exchange string, logger *slog.Logger) *BrokerChannel {
	return &BrokerChannel{exchange: exchange, pub: pub, logger: logger}
}

type brokerMessage struct {
	Kind      models.NotificationKind `json:"kind"`
	OrderID   string                  `json:"orderId"`
	UserID    string                  `json:"userId"`
	Data      map[string]string       `json:"data,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

func (b *BrokerChannel) Dispatch(_ context.Context, n models.Notification) error {
	body, err := json.Marshal(brokerMessage{
		Kind:      n.Kind,
		OrderID:   n.OrderID,
		UserID:    n.UserID,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("notification serialization error: %w", err)
	}

	pub, err := b.channel()
	if err != nil {
		return err
	}

	routingKey := "notification." + string(n.Kind)
	err = pub.Publish(b.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    n.DedupeKey,
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"kind":     string(n.Kind),
			"order_id": n.OrderID,
		},
	})
	if err != nil {
		b.reset()
		return fmt.Errorf("notification publish error: %w", err)
	}
	b.logger.Debug("notification published", "routing_key", routingKey, "order_id", n.OrderID)
	return nil
}

// channel returns the live publisher, dialling again after a failure.
func (b *BrokerChannel) channel() (publisher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		return b.pub, nil
	}
	if b.connect == nil {
		return nil, fmt.Errorf("broker channel is closed")
	}
	conn, pub, err := b.connect()
	if err != nil {
		return nil, err
	}
	b.conn, b.pub = conn, pub
	return pub, nil
}

func (b *BrokerChannel) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connect == nil {
		return
	}
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn, b.pub = nil, nil
}

// Close releases the connection.
func (b *BrokerChannel) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connect = nil
	b.pub = nil
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
