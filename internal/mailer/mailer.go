// Package mailer sends transactional email over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/geollm/geollm/internal/config"
)

const dialTimeout = 30 * time.Second

// Mailer delivers messages through a configured SMTP server.
// When SuppressSend is set (development and testing profiles), messages are
// logged instead of delivered.
type Mailer struct {
	host     string
	port     int
	useTLS   bool
	username string
	password string
	sender   string
	suppress bool
	logger   *slog.Logger
}

// New creates a Mailer from application config.
func New(cfg *config.Config, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		host:     cfg.MailServer,
		port:     cfg.MailPort,
		useTLS:   cfg.MailUseTLS,
		username: cfg.MailUsername,
		password: cfg.MailPassword,
		sender:   cfg.MailDefaultSender,
		suppress: cfg.MailSuppressSend,
		logger:   logger,
	}
}

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// SendWelcome sends the post-registration welcome message.
func (m *Mailer) SendWelcome(ctx context.Context, to, username string) error {
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n"+
			"Welcome to GeoLLM. Create an API key from your account and send your\r\n"+
			"first geographic query to POST /api/v1/query.\r\n\r\n"+
			"The GeoLLM team\r\n",
		username)

	return m.Send(ctx, Message{
		To:      to,
		Subject: "Welcome to GeoLLM",
		Body:    body,
	})
}

// SendPasswordReset sends a password-reset message carrying the reset token.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, username, token string) error {
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n"+
			"A password reset was requested for your GeoLLM account. Use this\r\n"+
			"token to set a new password:\r\n\r\n"+
			"    %s\r\n\r\n"+
			"If you did not request a reset, you can ignore this message.\r\n",
		username, token)

	return m.Send(ctx, Message{
		To:      to,
		Subject: "GeoLLM password reset",
		Body:    body,
	})
}

// Send delivers a message, honoring the suppress flag.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if m.suppress {
		m.logger.Info("mail suppressed",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
		)
		return nil
	}

	raw := buildMessage(m.sender, msg)

	if err := m.sendSMTP(ctx, msg.To, raw); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}

	m.logger.Info("mail sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// buildMessage assembles headers and body into a wire-format message.
func buildMessage(sender string, msg Message) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: GeoLLM <%s>\r\n", sender))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

func (m *Mailer) sendSMTP(ctx context.Context, to, raw string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if m.useTLS {
		tlsConfig := &tls.Config{
			ServerName: m.host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}

	if m.username != "" && m.password != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(m.sender); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := writer.Write([]byte(raw)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	// Message is already accepted at this point; a failed QUIT is harmless.
	_ = client.Quit()

	return nil
}
