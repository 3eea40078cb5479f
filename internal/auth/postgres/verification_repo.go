// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/store"
)

// VerificationTokenRepository implements auth.VerificationTokenRepository
// using PostgreSQL. The email column is unique, so Save is an upsert.
type VerificationTokenRepository struct {
	db store.Querier
}

// NewVerificationTokenRepository creates a new VerificationTokenRepository.
func NewVerificationTokenRepository(db store.Querier) *VerificationTokenRepository {
	return &VerificationTokenRepository{db: db}
}

// FindByEmail retrieves the live token for email.
func (r *VerificationTokenRepository) FindByEmail(ctx context.Context, email string) (*auth.VerificationToken, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, email, code, payload, expires_at, created_at
		FROM verification_tokens
		WHERE email = $1
	`, email)
	return r.scan(row, email)
}

// FindByEmailAndCode retrieves the token for email if code matches.
func (r *VerificationTokenRepository) FindByEmailAndCode(ctx context.Context, email, code string) (*auth.VerificationToken, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, email, code, payload, expires_at, created_at
		FROM verification_tokens
		WHERE email = $1 AND code = $2
	`, email, code)
	return r.scan(row, email)
}

// Save upserts token by email.
func (r *VerificationTokenRepository) Save(ctx context.Context, token *auth.VerificationToken) error {
	_, err := store.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO verification_tokens (id, email, code, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			id = EXCLUDED.id,
			code = EXCLUDED.code,
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`, token.ID.String(), token.Email, token.Code, token.Payload, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return oops.Code("VERIFICATION_SAVE_FAILED").
			With("operation", "upsert verification_token").
			With("email", token.Email).
			Wrap(err)
	}
	return nil
}

// Delete removes a token by ID. Of two concurrent deletes only one
// affects a row.
func (r *VerificationTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx,
		`DELETE FROM verification_tokens WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("VERIFICATION_DELETE_FAILED").
			With("operation", "delete verification_token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("VERIFICATION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByEmail removes any token for email.
func (r *VerificationTokenRepository) DeleteByEmail(ctx context.Context, email string) error {
	_, err := store.Conn(ctx, r.db).Exec(ctx,
		`DELETE FROM verification_tokens WHERE email = $1`, email)
	if err != nil {
		return oops.Code("VERIFICATION_DELETE_FAILED").
			With("operation", "delete verification_token by email").
			With("email", email).
			Wrap(err)
	}
	return nil
}

func (r *VerificationTokenRepository) scan(row pgx.Row, email string) (*auth.VerificationToken, error) {
	var (
		idStr string
		t     auth.VerificationToken
	)
	err := row.Scan(&idStr, &t.Email, &t.Code, &t.Payload, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_SCAN_FAILED").
			With("operation", "scan verification_token").
			Wrap(err)
	}

	t.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("VERIFICATION_INVALID_ID").
			With("operation", "parse verification token id").
			With("id", idStr).
			Wrap(err)
	}
	return &t, nil
}

var _ auth.VerificationTokenRepository = (*VerificationTokenRepository)(nil)
