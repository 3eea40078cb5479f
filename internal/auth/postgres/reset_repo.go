// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/store"
)

// PasswordResetRepository implements auth.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	db store.Querier
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(db store.Querier) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Save stores a new password reset grant.
func (r *PasswordResetRepository) Save(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := store.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO password_resets (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, reset.ID.String(), reset.AccountID, reset.TokenHash, reset.ExpiresAt, reset.CreatedAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset").
			With("account_id", reset.AccountID).
			Wrap(err)
	}
	return nil
}

// FindByTokenHash retrieves a grant by its token hash.
func (r *PasswordResetRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, account_id, token_hash, expires_at, created_at
		FROM password_resets
		WHERE token_hash = $1
	`, tokenHash)

	var (
		idStr     string
		accountID int64
		hash      string
		expiresAt time.Time
		createdAt time.Time
	)
	err := row.Scan(&idStr, &accountID, &hash, &expiresAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_SCAN_FAILED").
			With("operation", "scan password_reset").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").
			With("operation", "parse reset id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.PasswordReset{
		ID:        id,
		AccountID: accountID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// Delete removes a grant by ID.
func (r *PasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx,
		`DELETE FROM password_resets WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete password_reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByAccount removes every grant for an account. Deleting nothing is
// not an error.
func (r *PasswordResetRepository) DeleteByAccount(ctx context.Context, accountID int64) error {
	_, err := store.Conn(ctx, r.db).Exec(ctx,
		`DELETE FROM password_resets WHERE account_id = $1`, accountID)
	if err != nil {
		return oops.Code("RESET_DELETE_BY_ACCOUNT_FAILED").
			With("operation", "delete password_resets by account").
			With("account_id", accountID).
			Wrap(err)
	}
	return nil
}

var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
