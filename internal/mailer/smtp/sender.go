// Package smtp delivers digest emails over SMTP with STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/eventscout/eventscout/internal/digest"
	"github.com/eventscout/eventscout/internal/domain"
	"github.com/eventscout/eventscout/internal/matchqueue"
	"github.com/eventscout/eventscout/internal/pkg/ctxlog"
	"github.com/eventscout/eventscout/internal/users"
	"golang.org/x/time/rate"
)

// Config holds SMTP sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	// SendsPerSecond throttles outbound messages across the whole
	// process. Zero means unthrottled.
	SendsPerSecond float64
}

// Sender implements digest.Mailer over SMTP.
type Sender struct {
	config  Config
	auth    smtp.Auth
	users   users.Repository
	limiter *rate.Limiter
}

// NewSender creates an SMTP digest sender.
// Returns an error if enabled but required config is missing.
func NewSender(config Config, usersRepo users.Repository) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("smtp sender: host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("smtp sender: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.SendsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.SendsPerSecond), 1)
	}

	return &Sender{
		config:  config,
		auth:    auth,
		users:   usersRepo,
		limiter: limiter,
	}, nil
}

// Send delivers one digest to the subscription owner. Any error other
// than digest.ErrDigestDropped means the whole digest is undelivered
// and can be retried; a disabled sender returns ErrDigestDropped so
// drops surface in the cycle report instead of counting as sends.
func (s *Sender) Send(ctx context.Context, sub domain.Subscription, matches []matchqueue.Match) error {
	if !s.config.Enabled {
		ctxlog.FromContext(ctx).Warn("smtp sender disabled, dropping digest",
			"subscription_id", sub.ID,
			"events", len(matches),
		)
		return digest.ErrDigestDropped
	}

	recipient, err := s.users.GetEmail(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	msg := s.buildMessage(recipient, buildSubject(matches), buildBody(sub, matches))
	return s.sendWithSTARTTLS(ctx, recipient, msg)
}

func buildSubject(matches []matchqueue.Match) string {
	if len(matches) == 1 {
		return fmt.Sprintf("1 event matching your interests: %s", matches[0].Event.Title)
	}
	return fmt.Sprintf("%d events matching your interests", len(matches))
}

// buildBody renders the plain-text digest, best match first.
func buildBody(sub domain.Subscription, matches []matchqueue.Match) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Events matching %q:\n\n", sub.Prompt)
	for _, m := range matches {
		fmt.Fprintf(&b, "* %s\n", m.Event.Title)
		if !m.Event.StartsAt.IsZero() {
			fmt.Fprintf(&b, "  %s\n", m.Event.StartsAt.Format("Mon, 2 Jan 2006 15:04 MST"))
		}
		if m.Event.URL != "" {
			fmt.Fprintf(&b, "  %s\n", m.Event.URL)
		}
		b.WriteString("\n")
	}
	b.WriteString("You receive this digest because of your saved interest subscription.\n")

	return b.String()
}

// buildMessage constructs the message with headers in deterministic order.
func (s *Sender) buildMessage(recipient, subject, body string) []byte {
	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", s.config.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

func (s *Sender) sendWithSTARTTLS(ctx context.Context, recipient string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: s.config.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}
