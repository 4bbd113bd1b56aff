package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shophub/models"
	"shophub/notify"
	"shophub/store"
)

// Notifier records notification tasks in the outbox at the point of a state
// transition. Delivery happens later in OutboxWorker.
type Notifier struct {
	outbox store.Outbox
	logger *slog.Logger
}

func NewNotifier(outbox store.Outbox, logger *slog.Logger) *Notifier {
	return &Notifier{outbox: outbox, logger: logger.With("component", "notifier")}
}

// Enqueue stores a task for order. Tasks sharing dedupeKey are stored once.
// Failures are logged and returned; callers that already committed a state
// change treat them as non-fatal.
func (n *Notifier) Enqueue(ctx context.Context, dedupeKey string, kind models.NotificationKind, order *models.Order, data map[string]string) error {
	now := time.Now().UTC()
	task := &models.Notification{
		DedupeKey:     dedupeKey,
		Kind:          kind,
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		Data:          data,
		State:         models.NotificationPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := n.outbox.Enqueue(ctx, task); err != nil {
		n.logger.Error("failed to enqueue notification", "kind", kind, "order_id", order.OrderID, "error", err)
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// OutboxConfig tunes the outbox worker.
type OutboxConfig struct {
	PollInterval time.Duration
	// Lease is how long a claimed task is hidden from other workers.
	Lease       time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// SendTimeout bounds one dispatch.
	SendTimeout time.Duration
}

func (c *OutboxConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
}

// OutboxWorker drains due notification tasks with bounded retry. A task that
// keeps failing is parked as dead, where it stays visible for re-driving.
type OutboxWorker struct {
	outbox     store.Outbox
	dispatcher notify.Dispatcher
	cfg        OutboxConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewOutboxWorker(outbox store.Outbox, dispatcher notify.Dispatcher, cfg OutboxConfig, logger *slog.Logger) *OutboxWorker {
	cfg.defaults()
	return &OutboxWorker{
		outbox:     outbox,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With("component", "outbox_worker"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	w.logger.Info("outbox worker started", "poll_interval", w.cfg.PollInterval.String())
	for {
		select {
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("outbox poll failed", "error", err)
			}
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		}
	}
}

// ProcessDue handles every task due now and reports how many it dispatched
// successfully.
func (w *OutboxWorker) ProcessDue(ctx context.Context) (int, error) {
	sent := 0
	for ctx.Err() == nil {
		now := w.now()
		task, err := w.outbox.ClaimDue(ctx, now, w.cfg.Lease)
		if errors.Is(err, store.ErrNotFound) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}
		if w.handle(ctx, task, now) {
			sent++
		}
	}
	return sent, ctx.Err()
}

func (w *OutboxWorker) handle(ctx context.Context, task *models.Notification, now time.Time) bool {
	task.Attempts++
	log := w.logger.With("kind", task.Kind, "order_id", task.OrderID, "attempt", task.Attempts)

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	err := w.dispatcher.Dispatch(sendCtx, *task)
	cancel()

	if err == nil {
		if markErr := w.outbox.MarkSent(ctx, task, w.now()); markErr != nil {
			// the lease expires and the task is sent again
			log.Error("failed to mark notification sent", "error", markErr)
		}
		return true
	}

	state, next := models.NotificationPending, now.Add(w.backoff(task.Attempts))
	if task.Attempts >= w.cfg.MaxAttempts {
		state = models.NotificationDead
		log.Error("notification parked after final attempt", "error", err)
	} else {
		log.Warn("notification dispatch failed", "error", err, "next_attempt_at", next)
	}
	if rErr := w.outbox.Reschedule(ctx, task, state, next, err.Error()); rErr != nil {
		log.Error("failed to reschedule notification", "error", rErr)
	}
	return false
}

func (w *OutboxWorker) backoff(attempts int) time.Duration {
	d := w.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return d
}
