// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32 // 64 hex chars
	ResetTokenExpiry = 30 * time.Minute
)

// PasswordReset is a stored reset grant. Only the token hash is persisted.
type PasswordReset struct {
	ID        ulid.ULID
	AccountID int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the grant is expired at now.
func (r *PasswordReset) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// GenerateResetToken creates a random token and its hash.
// The plaintext goes into the reset link; the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, hashResetToken(token), nil
}

// VerifyResetToken checks a plaintext token against a stored hash in constant time.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashResetToken(token)), []byte(hash)) == 1
}

func hashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Save stores a new grant.
	Save(ctx context.Context, reset *PasswordReset) error

	// FindByTokenHash retrieves a grant by its token hash.
	FindByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// Delete removes a grant by ID. Returns ErrNotFound if nothing was removed.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByAccount removes any grant for the account.
	DeleteByAccount(ctx context.Context, accountID int64) error
}

// ResetStore implements single-use reset grants on top of a repository.
type ResetStore struct {
	repo PasswordResetRepository
	ttl  time.Duration
	now  func() time.Time
}

// ResetOption configures a ResetStore.
type ResetOption func(*ResetStore)

// WithResetTTL overrides the grant lifetime.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(s *ResetStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithResetClock replaces time.Now.
func WithResetClock(now func() time.Time) ResetOption {
	return func(s *ResetStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewResetStore creates a new ResetStore.
func NewResetStore(repo PasswordResetRepository, opts ...ResetOption) (*ResetStore, error) {
	if repo == nil {
		return nil, oops.Code("RESET_STORE_INVALID").Errorf("password reset repository is required")
	}
	s := &ResetStore{repo: repo, ttl: ResetTokenExpiry, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a grant for the account, replacing any live one, and returns
// the plaintext token.
func (s *ResetStore) Issue(ctx context.Context, accountID int64) (string, error) {
	if err := s.Discard(ctx, accountID); err != nil {
		return "", err
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	reset := &PasswordReset{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Save(ctx, reset); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "Save").
			With("account_id", accountID).
			Wrap(err)
	}
	return token, nil
}

// IsValid reports whether token names a live grant. It never consumes it.
func (s *ResetStore) IsValid(ctx context.Context, token string) (bool, error) {
	reset, err := s.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !reset.IsExpiredAt(s.now()), nil
}

// Consume spends a live grant and returns its account. An expired grant is
// deleted and reported as ErrResetExpired.
func (s *ResetStore) Consume(ctx context.Context, token string) (int64, error) {
	reset, err := s.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrResetInvalid
		}
		return 0, err
	}

	if reset.IsExpiredAt(s.now()) {
		if err := s.repo.Delete(ctx, reset.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, oops.Code("RESET_CONSUME_FAILED").
				With("operation", "Delete expired").
				Wrap(err)
		}
		return 0, ErrResetExpired
	}

	if err := s.repo.Delete(ctx, reset.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrResetInvalid
		}
		return 0, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "Delete").
			Wrap(err)
	}
	return reset.AccountID, nil
}

// DiscardToken removes the grant named by token, if any.
func (s *ResetStore) DiscardToken(ctx context.Context, token string) error {
	reset, err := s.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.repo.Delete(ctx, reset.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("RESET_DISCARD_FAILED").
			With("operation", "Delete").
			Wrap(err)
	}
	return nil
}

// Discard removes any grant for the account.
func (s *ResetStore) Discard(ctx context.Context, accountID int64) error {
	if err := s.repo.DeleteByAccount(ctx, accountID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("RESET_DISCARD_FAILED").
			With("account_id", accountID).
			Wrap(err)
	}
	return nil
}

func (s *ResetStore) lookup(ctx context.Context, token string) (*PasswordReset, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	reset, err := s.repo.FindByTokenHash(ctx, hashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, oops.Code("RESET_LOOKUP_FAILED").
			With("operation", "FindByTokenHash").
			Wrap(err)
	}
	if !VerifyResetToken(token, reset.TokenHash) {
		return nil, ErrNotFound
	}
	return reset, nil
}
