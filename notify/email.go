package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"shophub/models"
	"shophub/store"
	"shophub/utils"
)

// EmailChannel mails the order's owner. The address is looked up at send
// time, so notifications never carry personal data.
type EmailChannel struct {
	sender     utils.EmailSender
	recipients store.Recipients
	logger     *slog.Logger
}

func NewEmailChannel(sender utils.EmailSender, recipients store.Recipients, logger *slog.Logger) *EmailChannel {
	return &EmailChannel{
		sender:     sender,
		recipients: recipients,
		logger:     logger.With("component", "notify_email"),
	}
}

func (c *EmailChannel) Dispatch(ctx context.Context, n models.Notification) error {
	user, err := c.recipients.User(ctx, n.UserID)
	if errors.Is(err, store.ErrNotFound) {
		// Retrying cannot make an unknown user appear.
		c.logger.Warn("no recipient for notification", "kind", n.Kind, "user_id", n.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up recipient: %w", err)
	}
	if user.Email == "" {
		return nil
	}
	if n.Kind == models.NotifyReconciliationRequired {
		// operator-facing; goes to the broker and the log only
		return nil
	}

	msg := renderEmail(n)
	msg.To = user.Email
	return c.sender.Send(ctx, msg)
}

func renderEmail(n models.Notification) utils.EmailMessage {
	order := html.EscapeString(n.OrderID)
	var subject, body string

	switch n.Kind {
	case models.NotifyOrderPlaced:
		subject = "Order Confirmation"
		body = fmt.Sprintf("Thank you for your purchase! Your order %s has been placed. Total: %s %s.",
			order, html.EscapeString(n.Data["total"]), html.EscapeString(n.Data["currency"]))
	case models.NotifyPaymentConfirmed:
		subject = "Payment Received"
		body = fmt.Sprintf("We have received your payment for order %s.", order)
	case models.NotifyPaymentFailed:
		subject = "Payment Failed"
		body = fmt.Sprintf("Your payment for order %s did not go through: %s", order, html.EscapeString(n.Data["reason"]))
	case models.NotifyOrderStatusChanged:
		subject = "Order Update"
		body = fmt.Sprintf("Your order %s is now %s.", order, html.EscapeString(n.Data["status"]))
	case models.NotifyOrderCancelled:
		subject = "Order Cancelled"
		body = fmt.Sprintf("Your order %s has been cancelled.", order)
	case models.NotifyReturnRequested:
		subject = "Return Requested"
		body = fmt.Sprintf("We have received your return request for order %s.", order)
	case models.NotifyRefundProcessed:
		subject = "Refund Processed"
		body = fmt.Sprintf("A refund of %s %s for order %s has been issued.",
			html.EscapeString(n.Data["refundAmount"]), html.EscapeString(n.Data["currency"]), order)
	default:
		subject = "Order Update"
		body = fmt.Sprintf("There is an update on your order %s.", order)
	}

	return utils.EmailMessage{
		Subject: subject,
		HTML:    "<p>" + body + "</p>",
		Text:    html.UnescapeString(body),
	}
}
