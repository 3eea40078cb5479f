// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/pkg/errutil"
)

// Mail subjects.
const (
	SubjectSignupCode      = "Your Registration Verification Code"
	SubjectEmailChangeCode = "Your Email Change Verification Code"
	SubjectPasswordReset   = "Password Reset Request"
)

// DispatchRecorder counts dispatch outcomes per template.
type DispatchRecorder interface {
	RecordMailDispatch(template, status string)
}

type nopDispatchRecorder struct{}

func (nopDispatchRecorder) RecordMailDispatch(string, string) {}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Product      string
	ResetURLBase string
	OTPTTL       time.Duration
	ResetTTL     time.Duration
	Recorder     DispatchRecorder
	Logger       *slog.Logger
	Now          func() time.Time
}

// Dispatcher renders and sends the account emails.
type Dispatcher struct {
	mailer   Mailer
	renderer *Renderer
	cfg      DispatcherConfig
}

var _ auth.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher over mailer.
func NewDispatcher(mailer Mailer, cfg DispatcherConfig) (*Dispatcher, error) {
	if mailer == nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("mailer is required")
	}
	if cfg.ResetURLBase == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("reset url base is required")
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if cfg.Product == "" {
		cfg.Product = "Content Management System"
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = auth.OTPExpiry
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = auth.ResetTokenExpiry
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopDispatchRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.ResetURLBase = strings.TrimRight(cfg.ResetURLBase, "/")
	return &Dispatcher{mailer: mailer, renderer: renderer, cfg: cfg}, nil
}

// SendSignupCode implements auth.Notifier.
func (d *Dispatcher) SendSignupCode(ctx context.Context, email, code string) error {
	return d.send(ctx, TemplateSignupCode, SubjectSignupCode, email, MailData{
		Code:      code,
		ExpiresIn: humanize(d.cfg.OTPTTL),
	})
}

// SendEmailChangeCode implements auth.Notifier.
func (d *Dispatcher) SendEmailChangeCode(ctx context.Context, email, code string) error {
	return d.send(ctx, TemplateEmailChangeCode, SubjectEmailChangeCode, email, MailData{
		Code:      code,
		ExpiresIn: humanize(d.cfg.OTPTTL),
	})
}

// SendPasswordReset implements auth.Notifier.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, email, token string) error {
	return d.send(ctx, TemplatePasswordReset, SubjectPasswordReset, email, MailData{
		ResetURL:  d.ResetURL(token),
		ExpiresIn: humanize(d.cfg.ResetTTL),
	})
}

// ResetURL builds the link mailed for a reset token.
func (d *Dispatcher) ResetURL(token string) string {
	return d.cfg.ResetURLBase + "/" + token
}

func (d *Dispatcher) send(ctx context.Context, template, subject, to string, data MailData) error {
	data.Product = d.cfg.Product
	data.Year = d.cfg.Now().Year()

	body, err := d.renderer.Render(template, data)
	if err == nil {
		err = d.mailer.Send(ctx, to, subject, body)
	}
	if err != nil {
		d.cfg.Recorder.RecordMailDispatch(template, "failure")
		wrapped := oops.Code("NOTIFY_DISPATCH_FAILED").
			With("template", template).
			With("to", to).
			Wrap(err)
		d.cfg.Logger.WarnContext(ctx, "mail dispatch failed",
			append([]any{"template", template}, errutil.Attrs(wrapped)...)...)
		return wrapped
	}

	d.cfg.Recorder.RecordMailDispatch(template, "success")
	d.cfg.Logger.DebugContext(ctx, "mail dispatched", "template", template, "to", to)
	return nil
}

// humanize renders whole minutes or hours, e.g. "10 minutes".
func humanize(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
