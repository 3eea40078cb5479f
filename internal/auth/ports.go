// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import "context"

// Transactor runs fn inside one database transaction. Repositories called
// with the ctx passed to fn take part in it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoTx runs fn directly. Used where the repositories are not transactional.
type NoTx struct{}

// WithinTx implements Transactor.
func (NoTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Notifier delivers out-of-band secrets to users.
type Notifier interface {
	SendSignupCode(ctx context.Context, email, code string) error
	SendEmailChangeCode(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// ImageStore holds profile images.
type ImageStore interface {
	// Put stores data under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)

	// Delete removes the object behind a URL returned by Put.
	Delete(ctx context.Context, url string) error
}

// Recorder counts flow outcomes.
type Recorder interface {
	RecordAuthOperation(operation, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOperation(string, string) {}

// Collaborators are the dependencies shared by the flow services. Each
// constructor checks only the fields it needs.
type Collaborators struct {
	Accounts AccountRepository
	OTPs     *OTPStore
	Resets   *ResetStore
	Hasher   PasswordHasher
	Sessions *SessionCodec
	Notifier Notifier
	Images   ImageStore
	Tx       Transactor
}

func (c Collaborators) transactor() Transactor {
	if c.Tx == nil {
		return NoTx{}
	}
	return c.Tx
}
