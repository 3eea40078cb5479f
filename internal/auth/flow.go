// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hemasrilatha/cms/pkg/errutil"
)

const tracerName = "github.com/hemasrilatha/cms/internal/auth"

// Operation results recorded alongside error kinds.
const resultSuccess = "success"

// flowBase carries the cross-cutting concerns of every flow service.
type flowBase struct {
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a flow service.
type Option func(*flowBase)

// WithLogger sets the logger used for failed operations.
func WithLogger(logger *slog.Logger) Option {
	return func(b *flowBase) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRecorder sets the operation metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *flowBase) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *flowBase) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithNow replaces time.Now for timestamps written by the flow.
func WithNow(now func() time.Time) Option {
	return func(b *flowBase) {
		if now != nil {
			b.now = now
		}
	}
}

func newFlowBase(opts []Option) flowBase {
	b := flowBase{
		logger:   slog.Default(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// begin opens a span for operation. The returned func must be called with
// the operation's final error.
func (b *flowBase) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := b.tracer.Start(ctx, "auth."+operation)
	return ctx, func(err error) {
		defer span.End()

		if err == nil {
			b.recorder.RecordAuthOperation(operation, resultSuccess)
			return
		}

		kind := KindOf(err)
		b.recorder.RecordAuthOperation(operation, string(kind))
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		span.SetStatus(codes.Error, CodeOf(err))

		switch kind {
		case KindInternal, KindDispatch:
			span.RecordError(err)
			errutil.LogErrorContext(ctx, b.logger, operation+" failed", err)
		default:
			b.logger.DebugContext(ctx, operation+" rejected",
				"kind", string(kind),
				"code", CodeOf(err))
		}
	}
}

// discardOTP is best-effort cleanup; the caller already has an error to report.
func (b *flowBase) discardOTP(ctx context.Context, otps *OTPStore, email string) {
	if err := otps.Discard(ctx, email); err != nil {
		b.logger.WarnContext(ctx, "failed to discard verification token",
			"email", email,
			"error", err)
	}
}

// classify passes classified errors through and marks the rest internal.
func classify(code, operation string, err error) error {
	if KindOf(err) != KindInternal {
		return err
	}
	return internalError(code, operation, err)
}

func requireDep(ok bool, service, name string) error {
	if ok {
		return nil
	}
	return oops.Code("AUTH_SERVICE_INVALID").
		With("service", service).
		Errorf("%s is required", name)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
