// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package notify delivers the account emails: signup and email-change
// codes, and password reset links.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"
)

// Mailer sends one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// TLS policies accepted by SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string
	Timeout  time.Duration
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// NewSMTPMailer creates an SMTPMailer. Authentication is enabled when a
// username is set.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("from address is required")
	}

	policy := mail.TLSMandatory
	switch cfg.TLS {
	case "", TLSMandatory:
	case TLSOpportunistic:
		policy = mail.TLSOpportunistic
	case TLSNone:
		policy = mail.NoTLS
	default:
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("tls", cfg.TLS).Errorf("unknown tls policy %q", cfg.TLS)
	}

	opts := []mail.Option{mail.WithTLSPolicy(policy)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return oops.Code("MAIL_ADDRESS_INVALID").With("from", m.from).Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return oops.Code("MAIL_ADDRESS_INVALID").With("to", to).Wrap(err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("to", to).Wrap(err)
	}
	return nil
}

// SentMail is a message captured by LogMailer.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// LogMailer logs messages instead of sending them. The body is kept in
// memory only, never logged.
type LogMailer struct {
	logger *slog.Logger

	mu   sync.Mutex
	last *SentMail
	sent int
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	m.last = &SentMail{To: to, Subject: subject, Body: htmlBody}
	m.sent++
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "mail not sent, log driver active",
		"to", to,
		"subject", subject,
		"bytes", len(htmlBody))
	return nil
}

// Last returns the most recent message, or nil.
func (m *LogMailer) Last() *SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil
	}
	cp := *m.last
	return &cp
}

// Sent reports how many messages were accepted.
func (m *LogMailer) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// RetryingMailer retries a Mailer with exponential backoff.
type RetryingMailer struct {
	next     Mailer
	attempts uint64
	base     time.Duration
	logger   *slog.Logger
}

// NewRetryingMailer wraps next. retries is the number of extra attempts
// after the first; base is the first backoff interval.
func NewRetryingMailer(next Mailer, retries uint64, base time.Duration, logger *slog.Logger) *RetryingMailer {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingMailer{next: next, attempts: retries, base: base, logger: logger}
}

// Send implements Mailer. Address errors are not retried.
func (m *RetryingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	backoff := retry.WithMaxRetries(m.attempts, retry.WithCappedDuration(5*time.Second, retry.NewExponential(m.base)))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := m.next.Send(ctx, to, subject, htmlBody)
		if err == nil {
			return nil
		}
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == "MAIL_ADDRESS_INVALID" {
			return err
		}
		m.logger.WarnContext(ctx, "mail send failed",
			"to", to,
			"attempt", attempt,
			"error", err)
		return retry.RetryableError(err)
	})
}
