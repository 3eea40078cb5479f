// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
)

type tokenRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *tokenRecord) token() (*auth.VerificationToken, error) {
	id, err := ulid.Parse(r.ID)
	if err != nil {
		return nil, oops.Code("VERIFICATION_INVALID_ID").With("id", r.ID).Wrap(err)
	}
	return &auth.VerificationToken{
		ID:        id,
		Email:     r.Email,
		Code:      r.Code,
		Payload:   r.Payload,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}, nil
}

// VerificationTokenRepository implements auth.VerificationTokenRepository
// on Redis. Each token is stored under its email, with a second key from
// ID to email for Delete.
type VerificationTokenRepository struct {
	client goredis.UniversalClient
	keys   keys
}

// NewVerificationTokenRepository creates a new VerificationTokenRepository.
// An empty prefix uses DefaultPrefix.
func NewVerificationTokenRepository(client goredis.UniversalClient, prefix string) *VerificationTokenRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &VerificationTokenRepository{client: client, keys: keys{prefix: prefix}}
}

func (r *VerificationTokenRepository) load(ctx context.Context, g getter, email string) (*tokenRecord, error) {
	data, err := g.Get(ctx, r.keys.otp(email)).Bytes()
	if nf := notFound("VERIFICATION_NOT_FOUND", err); nf != nil {
		return nil, nf
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_READ_FAILED").With("email", email).Wrap(err)
	}
	return decode[tokenRecord](data, "VERIFICATION_READ_FAILED")
}

// FindByEmail retrieves the live token for email.
func (r *VerificationTokenRepository) FindByEmail(ctx context.Context, email string) (*auth.VerificationToken, error) {
	rec, err := r.load(ctx, r.client, email)
	if err != nil {
		return nil, err
	}
	return rec.token()
}

// FindByEmailAndCode retrieves the token for email if code matches.
func (r *VerificationTokenRepository) FindByEmailAndCode(ctx context.Context, email, code string) (*auth.VerificationToken, error) {
	rec, err := r.load(ctx, r.client, email)
	if err != nil {
		return nil, err
	}
	if rec.Code != code {
		return nil, oops.Code("VERIFICATION_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return rec.token()
}

// Save replaces whatever token email had.
func (r *VerificationTokenRepository) Save(ctx context.Context, token *auth.VerificationToken) error {
	rec := tokenRecord{
		ID:        token.ID.String(),
		Email:     token.Email,
		Code:      token.Code,
		Payload:   token.Payload,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return oops.Code("VERIFICATION_SAVE_FAILED").With("operation", "encode record").Wrap(err)
	}
	ttl := recordTTL(token.ExpiresAt, token.CreatedAt)
	key := r.keys.otp(token.Email)

	err = r.watch(ctx, key, func(tx *goredis.Tx) error {
		prev, err := r.load(ctx, tx, token.Email)
		if err != nil && !errors.Is(err, auth.ErrNotFound) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if prev != nil {
				pipe.Del(ctx, r.keys.otpID(prev.ID))
			}
			pipe.Set(ctx, key, data, ttl)
			pipe.Set(ctx, r.keys.otpID(rec.ID), token.Email, ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return oops.Code("VERIFICATION_SAVE_FAILED").With("email", token.Email).Wrap(err)
	}
	return nil
}

// Delete removes a token by ID. The DEL of the ID key decides which of
// several concurrent callers wins.
func (r *VerificationTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	email, err := r.client.GetDel(ctx, r.keys.otpID(id.String())).Result()
	if nf := notFound("VERIFICATION_NOT_FOUND", err); nf != nil {
		return nf
	}
	if err != nil {
		return oops.Code("VERIFICATION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}

	key := r.keys.otp(email)
	err = r.watch(ctx, key, func(tx *goredis.Tx) error {
		rec, err := r.load(ctx, tx, email)
		if errors.Is(err, auth.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.ID != id.String() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	})
	if err != nil {
		return oops.Code("VERIFICATION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// DeleteByEmail removes any token for email.
func (r *VerificationTokenRepository) DeleteByEmail(ctx context.Context, email string) error {
	rec, err := r.load(ctx, r.client, email)
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.keys.otp(email), r.keys.otpID(rec.ID)).Err(); err != nil {
		return oops.Code("VERIFICATION_DELETE_FAILED").With("email", email).Wrap(err)
	}
	return nil
}

func (r *VerificationTokenRepository) watch(ctx context.Context, key string, fn func(*goredis.Tx) error) error {
	var err error
	for range maxWatchRetries {
		err = r.client.Watch(ctx, fn, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}

var _ auth.VerificationTokenRepository = (*VerificationTokenRepository)(nil)
