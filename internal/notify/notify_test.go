// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemasrilatha/cms/pkg/errutil"
)

type sentCall struct {
	to, subject, body string
}

type stubMailer struct {
	mu    sync.Mutex
	calls []sentCall
	errs  []error
}

func (m *stubMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sentCall{to, subject, body})
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	return nil
}

type countingRecorder struct {
	counts map[string]int
}

func (r *countingRecorder) RecordMailDispatch(template, status string) {
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[template+"/"+status]++
}

func newTestDispatcher(t *testing.T, mailer Mailer, rec DispatchRecorder) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(mailer, DispatcherConfig{
		ResetURLBase: "https://cms.example.com/reset-password/",
		Recorder:     rec,
		Logger:       slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Now:          func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return d
}

func TestRenderer_Templates(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	tests := []struct {
		name     string
		data     MailData
		contains []string
	}{
		{
			name:     TemplateSignupCode,
			data:     MailData{Product: "CMS", Code: "042917", ExpiresIn: "10 minutes", Year: 2026},
			contains: []string{"042917", "10 minutes", "complete your registration", "2026 CMS"},
		},
		{
			name:     TemplateEmailChangeCode,
			data:     MailData{Product: "CMS", Code: "310554", ExpiresIn: "10 minutes"},
			contains: []string{"310554", "change the email address"},
		},
		{
			name:     TemplatePasswordReset,
			data:     MailData{Product: "CMS", ResetURL: "https://x.test/reset/tok", ExpiresIn: "30 minutes"},
			contains: []string{`href="https://x.test/reset/tok"`, "30 minutes", "Reset Password"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := r.Render(tt.name, tt.data)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, body, want)
			}
			assert.Contains(t, body, "Please do not reply to this email")
		})
	}
}

func TestRenderer_EscapesData(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	body, err := r.Render(TemplateSignupCode, MailData{Product: "<b>CMS</b>", Code: "1"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<b>CMS</b>")
	assert.Contains(t, body, "&lt;b&gt;CMS&lt;/b&gt;")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render("welcome", MailData{})
	errutil.AssertErrorCode(t, err, "MAIL_RENDER_FAILED")
}

func TestDispatcher_Subjects(t *testing.T) {
	ctx := context.Background()
	mailer := &stubMailer{}
	rec := &countingRecorder{}
	d := newTestDispatcher(t, mailer, rec)

	require.NoError(t, d.SendSignupCode(ctx, "a@x.com", "123456"))
	require.NoError(t, d.SendEmailChangeCode(ctx, "b@x.com", "654321"))
	require.NoError(t, d.SendPasswordReset(ctx, "c@x.com", "tok-1"))

	require.Len(t, mailer.calls, 3)
	assert.Equal(t, "a@x.com", mailer.calls[0].to)
	assert.Equal(t, SubjectSignupCode, mailer.calls[0].subject)
	assert.Contains(t, mailer.calls[0].body, "123456")
	assert.Contains(t, mailer.calls[0].body, "10 minutes")
	assert.Equal(t, SubjectEmailChangeCode, mailer.calls[1].subject)
	assert.Contains(t, mailer.calls[1].body, "654321")
	assert.Equal(t, SubjectPasswordReset, mailer.calls[2].subject)
	assert.Contains(t, mailer.calls[2].body, "https://cms.example.com/reset-password/tok-1")
	assert.Contains(t, mailer.calls[2].body, "30 minutes")

	assert.Equal(t, 1, rec.counts["signup_code/success"])
	assert.Equal(t, 1, rec.counts["email_change_code/success"])
	assert.Equal(t, 1, rec.counts["password_reset/success"])
}

func TestDispatcher_ResetURL(t *testing.T) {
	d := newTestDispatcher(t, &stubMailer{}, nil)
	assert.Equal(t, "https://cms.example.com/reset-password/abc", d.ResetURL("abc"))
}

func TestDispatcher_Failure(t *testing.T) {
	mailer := &stubMailer{errs: []error{errors.New("connection refused")}}
	rec := &countingRecorder{}
	d := newTestDispatcher(t, mailer, rec)

	err := d.SendSignupCode(context.Background(), "a@x.com", "123456")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "NOTIFY_DISPATCH_FAILED")
	errutil.AssertErrorContext(t, err, "template", TemplateSignupCode)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, rec.counts["signup_code/failure"])
}

func TestNewDispatcher_Requirements(t *testing.T) {
	_, err := NewDispatcher(nil, DispatcherConfig{ResetURLBase: "http://x"})
	errutil.AssertErrorCode(t, err, "NOTIFY_CONFIG_INVALID")

	_, err = NewDispatcher(&stubMailer{}, DispatcherConfig{})
	errutil.AssertErrorCode(t, err, "NOTIFY_CONFIG_INVALID")
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "10 minutes", humanize(10*time.Minute))
	assert.Equal(t, "1 minute", humanize(time.Minute))
	assert.Equal(t, "2 hours", humanize(2*time.Hour))
	assert.Equal(t, "90 minutes", humanize(90*time.Minute))
	assert.Equal(t, "45 seconds", humanize(45*time.Second))
}

func TestLogMailer_KeepsBodyOutOfLogs(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	assert.Nil(t, m.Last())
	require.NoError(t, m.Send(context.Background(), "a@x.com", "Subject", "<p>code 123456</p>"))

	last := m.Last()
	require.NotNil(t, last)
	assert.Equal(t, "a@x.com", last.To)
	assert.Equal(t, "<p>code 123456</p>", last.Body)
	assert.Equal(t, 1, m.Sent())
	assert.Contains(t, buf.String(), "a@x.com")
	assert.NotContains(t, buf.String(), "123456")
}

func TestRetryingMailer(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("succeeds after transient failures", func(t *testing.T) {
		next := &stubMailer{errs: []error{errors.New("timeout"), errors.New("timeout")}}
		m := NewRetryingMailer(next, 3, time.Millisecond, quiet)

		require.NoError(t, m.Send(context.Background(), "a@x.com", "s", "b"))
		assert.Len(t, next.calls, 3)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		next := &stubMailer{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
		m := NewRetryingMailer(next, 2, time.Millisecond, quiet)

		err := m.Send(context.Background(), "a@x.com", "s", "b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "down")
		assert.Len(t, next.calls, 3)
	})

	t.Run("does not retry address errors", func(t *testing.T) {
		next := &stubMailer{errs: []error{oops.Code("MAIL_ADDRESS_INVALID").Errorf("bad address")}}
		m := NewRetryingMailer(next, 3, time.Millisecond, quiet)

		err := m.Send(context.Background(), "nope", "s", "b")
		errutil.AssertErrorCode(t, err, "MAIL_ADDRESS_INVALID")
		assert.Len(t, next.calls, 1)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		next := &stubMailer{errs: []error{errors.New("down"), errors.New("down")}}
		m := NewRetryingMailer(next, 5, time.Hour, quiet)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := m.Send(ctx, "a@x.com", "s", "b")
		require.Error(t, err)
		assert.LessOrEqual(t, len(next.calls), 1)
	})
}

func TestNewSMTPMailer_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SMTPConfig
		wantErr bool
	}{
		{name: "missing host", cfg: SMTPConfig{From: "no-reply@x.com"}, wantErr: true},
		{name: "missing from", cfg: SMTPConfig{Host: "smtp.x.com"}, wantErr: true},
		{name: "unknown tls", cfg: SMTPConfig{Host: "smtp.x.com", From: "no-reply@x.com", TLS: "sometimes"}, wantErr: true},
		{name: "plain relay", cfg: SMTPConfig{Host: "localhost", Port: 1025, From: "no-reply@x.com", TLS: TLSNone}},
		{
			name: "authenticated",
			cfg: SMTPConfig{
				Host: "smtp.x.com", Port: 587, From: "no-reply@x.com",
				Username: "user", Password: "pass", TLS: TLSMandatory, Timeout: 5 * time.Second,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewSMTPMailer(tt.cfg)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}
}
