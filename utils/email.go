// utils/email.go
package utils

import (
	"context"
	"fmt"

	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailMessage is a rendered transactional e-mail.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailSender delivers a rendered e-mail through a provider.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// PostmarkSender sends e-mail through Postmark
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

// NewPostmarkSender builds a sender from a server token and the From address.
func NewPostmarkSender(serverToken, from string) *PostmarkSender {
	return &PostmarkSender{client: postmark.NewClient(serverToken, ""), from: from}
}

// Send ignores ctx; the Postmark client has no context support.
func (s *PostmarkSender) Send(_ context.Context, msg EmailMessage) error {
	res, err := s.client.SendEmail(postmark.Email{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if res.ErrorCode != 0 {
		return fmt.Errorf("failed to send email: postmark error %d: %s", res.ErrorCode, res.Message)
	}
	return nil
}

// SendGridSender sends e-mail through SendGrid
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridSender(apiKey, from string) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), from: mail.NewEmail("", from)}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	m := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail("", msg.To), msg.Text, msg.HTML)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to send email: sendgrid status %d", resp.StatusCode)
	}
	return nil
}
