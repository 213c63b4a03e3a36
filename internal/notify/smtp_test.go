package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/storefront/api/internal/services"
)

func newTestMailer(t *testing.T, send func(*gomail.Message) error) *SMTPMailer {
	t.Helper()
	mailer, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "shop@example.com", Timeout: time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	mailer.send = send
	return mailer
}

func TestSMTPMailerBuildsMultipartMessage(t *testing.T) {
	var captured *gomail.Message
	mailer := newTestMailer(t, func(m *gomail.Message) error {
		captured = m
		return nil
	})

	err := mailer.Send(context.Background(), services.MailMessage{
		To:      " asha@example.com ",
		Subject: "Your Order Invoice - Delivered",
		Text:    "Thanks for shopping",
		HTML:    "<p>Thanks for shopping</p>",
		Attachments: []services.MailAttachment{
			{Filename: "invoice.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.3 body")},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if captured == nil {
		t.Fatalf("expected message handed to sender")
	}
	if from := captured.GetHeader("From"); len(from) != 1 || from[0] != "shop@example.com" {
		t.Fatalf("unexpected From header %v", from)
	}
	if to := captured.GetHeader("To"); len(to) != 1 || to[0] != "asha@example.com" {
		t.Fatalf("unexpected To header %v", to)
	}

	var buf bytes.Buffer
	if _, err := captured.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"multipart/alternative", "text/html", `filename="invoice.pdf"`, "application/pdf"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected message to contain %q", want)
		}
	}
}

func TestSMTPMailerPropagatesErrors(t *testing.T) {
	mailer := newTestMailer(t, func(*gomail.Message) error { return errors.New("relay refused") })

	err := mailer.Send(context.Background(), services.MailMessage{To: "a@example.com", Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "relay refused") {
		t.Fatalf("expected relay error, got %v", err)
	}

	err = mailer.Send(context.Background(), services.MailMessage{Text: "hi"})
	if !errors.Is(err, ErrMissingRecipient) {
		t.Fatalf("expected ErrMissingRecipient, got %v", err)
	}
}

func TestSMTPMailerHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	mailer := newTestMailer(t, func(*gomail.Message) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := mailer.Send(ctx, services.MailMessage{To: "a@example.com", Text: "hi"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewSMTPMailerValidation(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{}, nil); err == nil {
		t.Fatalf("expected error without host")
	}
	if _, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"}, nil); err == nil {
		t.Fatalf("expected error without sender")
	}

	mailer, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", From: "noreply@example.com"}, nil)
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	if mailer.timeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %s", mailer.timeout)
	}
}

func TestNopMailer(t *testing.T) {
	if err := (NopMailer{}).Send(context.Background(), services.MailMessage{To: "a@example.com"}); err != nil {
		t.Fatalf("nop mailer: %v", err)
	}
}
