// Package notify delivers outbox notifications to the buyer-facing side
// channels: e-mail, the message broker and the log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shophub/models"
)

// Dispatcher delivers one notification. A returned error makes the outbox
// retry the task later.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n models.Notification) error

func (f DispatcherFunc) Dispatch(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}

// FanOut dispatches to every channel and fails if any of them fails.
type FanOut []Dispatcher

func (f FanOut) Dispatch(ctx context.Context, n models.Notification) error {
	var errs []error
	for i, d := range f {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// LogChannel writes notifications to the log. It is the fallback when no
// other channel is configured.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With("component", "notify")}
}

func (c *LogChannel) Dispatch(_ context.Context, n models.Notification) error {
	c.logger.Info("notification",
		"kind", n.Kind,
		"order_id", n.OrderID,
		"user_id", n.UserID,
		"attempt", n.Attempts,
	)
	return nil
}
