package email_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ErlanBelekov/bloodbank/internal/email"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := email.NewSender("local", "", "", slog.New(slog.NewTextHandler(&buf, nil)))

	err := sender.Send(context.Background(), email.Message{
		To:      []string{"lab@example.com"},
		Subject: "hello",
		Text:    "plain body",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, want := range []string{"lab@example.com", "subject=hello", "plain body"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log missing %q: %s", want, buf.String())
		}
	}
}

func TestSend_NoRecipients(t *testing.T) {
	senders := map[string]email.Sender{
		"log":    email.NewSender("local", "", "", slog.Default()),
		"resend": email.NewSender("production", "re_test", "noreply@example.com", slog.Default()),
	}
	for name, s := range senders {
		t.Run(name, func(t *testing.T) {
			if err := s.Send(context.Background(), email.Message{Subject: "x"}); !errors.Is(err, email.ErrNoRecipients) {
				t.Errorf("expected ErrNoRecipients, got %v", err)
			}
		})
	}
}
