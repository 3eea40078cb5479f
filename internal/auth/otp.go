// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// OTP configuration.
const (
	OTPExpiry = 10 * time.Minute
	otpMin    = 100000
	otpSpan   = 900000
)

// VerificationToken is the single live one-time code for an email.
type VerificationToken struct {
	ID        ulid.ULID
	Email     string
	Code      string
	Payload   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the token is expired at now.
func (v *VerificationToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// VerificationTokenRepository manages verification token persistence.
type VerificationTokenRepository interface {
	// FindByEmail retrieves the live token for email.
	FindByEmail(ctx context.Context, email string) (*VerificationToken, error)

	// FindByEmailAndCode retrieves the token for email only if its code matches.
	FindByEmailAndCode(ctx context.Context, email, code string) (*VerificationToken, error)

	// Save upserts by email: an existing token for the same email is replaced.
	Save(ctx context.Context, token *VerificationToken) error

	// Delete removes a token by ID. Returns ErrNotFound if nothing was removed.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByEmail removes any token for email.
	DeleteByEmail(ctx context.Context, email string) error
}

// GenerateOTP returns a uniformly random code in 100000..999999.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", oops.Code("OTP_GENERATE_FAILED").Wrap(err)
	}
	return strconv.FormatInt(otpMin+n.Int64(), 10), nil
}

// OTPStore implements the one-time code protocol on top of a repository.
type OTPStore struct {
	repo     VerificationTokenRepository
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// OTPOption configures an OTPStore.
type OTPOption func(*OTPStore)

// WithOTPTTL overrides the code lifetime.
func WithOTPTTL(ttl time.Duration) OTPOption {
	return func(s *OTPStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithOTPClock replaces time.Now.
func WithOTPClock(now func() time.Time) OTPOption {
	return func(s *OTPStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOTPGenerator replaces the code generator.
func WithOTPGenerator(gen func() (string, error)) OTPOption {
	return func(s *OTPStore) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// NewOTPStore creates a new OTPStore.
func NewOTPStore(repo VerificationTokenRepository, opts ...OTPOption) (*OTPStore, error) {
	if repo == nil {
		return nil, oops.Code("OTP_STORE_INVALID").Errorf("verification token repository is required")
	}
	s := &OTPStore{
		repo:     repo,
		ttl:      OTPExpiry,
		now:      time.Now,
		generate: GenerateOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue stores a fresh code for email, replacing any live one, and returns it.
func (s *OTPStore) Issue(ctx context.Context, email string, pending Pending) (string, error) {
	payload, err := EncodePending(pending)
	if err != nil {
		return "", err
	}

	code, err := s.generate()
	if err != nil {
		return "", err
	}

	now := s.now()
	token := &VerificationToken{
		ID:        ulid.Make(),
		Email:     email,
		Code:      code,
		Payload:   payload,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Save(ctx, token); err != nil {
		return "", oops.Code("OTP_ISSUE_FAILED").
			With("operation", "Save").
			With("email", email).
			Wrap(err)
	}
	return code, nil
}

// Verify consumes the code for email. A missing token, a wrong code and a
// token issued by another flow all read as ErrOTPInvalid. An expired token
// is deleted and reported as ErrOTPExpired.
func (s *OTPStore) Verify(ctx context.Context, email, code string, kind PendingKind) (Pending, error) {
	token, err := s.repo.FindByEmailAndCode(ctx, email, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, oops.Code("OTP_VERIFY_FAILED").
			With("operation", "FindByEmailAndCode").
			Wrap(err)
	}

	if pendingKindOf(token.Payload) != kind {
		return nil, ErrOTPInvalid
	}

	if token.IsExpiredAt(s.now()) {
		if err := s.repo.Delete(ctx, token.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("OTP_VERIFY_FAILED").
				With("operation", "Delete expired").
				Wrap(err)
		}
		return nil, ErrOTPExpired
	}

	if err := s.repo.Delete(ctx, token.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Another verifier consumed it first.
			return nil, ErrOTPInvalid
		}
		return nil, oops.Code("OTP_VERIFY_FAILED").
			With("operation", "Delete").
			Wrap(err)
	}

	pending, err := DecodePending(token.Payload)
	if err != nil {
		return nil, oops.Code("OTP_VERIFY_FAILED").
			With("operation", "DecodePending").
			Wrap(err)
	}
	return pending, nil
}

// Resend replaces the token for email with a new ID and code, keeping its
// payload, and returns the new code. A verifier still holding the old token
// then fails its delete.
func (s *OTPStore) Resend(ctx context.Context, email string, kind PendingKind) (string, error) {
	token, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrOTPInvalid
		}
		return "", oops.Code("OTP_RESEND_FAILED").
			With("operation", "FindByEmail").
			Wrap(err)
	}
	if pendingKindOf(token.Payload) != kind {
		return "", ErrOTPInvalid
	}

	code, err := s.generate()
	if err != nil {
		return "", err
	}

	now := s.now()
	token.ID = ulid.Make()
	token.Code = code
	token.ExpiresAt = now.Add(s.ttl)
	token.CreatedAt = now
	if err := s.repo.Save(ctx, token); err != nil {
		return "", oops.Code("OTP_RESEND_FAILED").
			With("operation", "Save").
			Wrap(err)
	}
	return code, nil
}

// Discard removes any token for email. Used to undo an issue whose code
// could not be delivered.
func (s *OTPStore) Discard(ctx context.Context, email string) error {
	if err := s.repo.DeleteByEmail(ctx, email); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("OTP_DISCARD_FAILED").
			With("email", email).
			Wrap(err)
	}
	return nil
}
