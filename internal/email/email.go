// Package email delivers operational notices such as the inventory expiry
// report.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

var ErrNoRecipients = errors.New("email has no recipients")

// Message carries both renderings; senders pick whichever the transport takes.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
	// Category tags the message for filtering in the provider dashboard.
	Category string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes the text rendering to the log. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	s.logger.InfoContext(ctx, "email (local dev)",
		"to", msg.To,
		"subject", msg.Subject,
		"category", msg.Category,
		"body", msg.Text,
	)
	return nil
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	if msg.Category != "" {
		params.Tags = []resend.Tag{{Name: "category", Value: msg.Category}}
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send %q to %d recipient(s): %w", msg.Subject, len(msg.To), err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger.With("component", "email")}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}
