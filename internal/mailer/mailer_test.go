package mailer

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/geollm/geollm/internal/config"
)

func suppressedMailer(buf *bytes.Buffer) *Mailer {
	cfg := &config.Config{
		MailServer:        "smtp.example.com",
		MailPort:          587,
		MailDefaultSender: "noreply@geollm.local",
		MailSuppressSend:  true,
	}
	return New(cfg, slog.New(slog.NewJSONHandler(buf, nil)))
}

func TestSend_Suppressed(t *testing.T) {
	var buf bytes.Buffer
	m := suppressedMailer(&buf)

	err := m.Send(context.Background(), Message{
		To:      "alice@example.com",
		Subject: "Test",
		Body:    "hello",
	})
	if err != nil {
		t.Fatalf("suppressed send should not fail: %v", err)
	}

	logOutput := buf.String()
	if !strings.Contains(logOutput, "mail suppressed") {
		t.Error("suppressed send should be logged")
	}
	if !strings.Contains(logOutput, "alice@example.com") {
		t.Error("log should carry the recipient")
	}
}

func TestSendWelcome_Suppressed(t *testing.T) {
	var buf bytes.Buffer
	m := suppressedMailer(&buf)

	if err := m.SendWelcome(context.Background(), "bob@example.com", "bob"); err != nil {
		t.Fatalf("SendWelcome failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Welcome to GeoLLM") {
		t.Error("welcome subject should be logged")
	}
}

func TestBuildMessage(t *testing.T) {
	raw := buildMessage("noreply@geollm.local", Message{
		To:      "carol@example.com",
		Subject: "GeoLLM password reset",
		Body:    "token body",
	})

	wantHeaders := []string{
		"From: GeoLLM <noreply@geollm.local>\r\n",
		"To: carol@example.com\r\n",
		"Subject: GeoLLM password reset\r\n",
		"Content-Type: text/plain; charset=UTF-8\r\n",
	}
	for _, header := range wantHeaders {
		if !strings.Contains(raw, header) {
			t.Errorf("message missing header %q", header)
		}
	}

	// Headers and body separated by a blank line
	if !strings.Contains(raw, "\r\n\r\ntoken body") {
		t.Error("body should follow a blank line after headers")
	}
}
