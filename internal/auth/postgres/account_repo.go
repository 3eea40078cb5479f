// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/store"
)

const accountColumns = `id, email, username, password_hash, is_admin, is_verified,
	profile_image, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db store.Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db store.Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts account and sets its ID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO accounts (
			email, username, password_hash, is_admin, is_verified,
			profile_image, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		account.Email,
		account.Username,
		account.PasswordHash,
		account.Admin,
		account.Verified,
		account.ProfileImage,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if isUniqueViolation(err, accountsEmailKey) {
		return oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	return nil
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*auth.Account, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return account, err
}

// FindByEmail retrieves an account by email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return account, err
}

// FindAll returns every account ordered by ID.
func (r *AccountRepository) FindAll(ctx context.Context) ([]*auth.Account, error) {
	rows, err := store.Conn(ctx, r.db).Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return accounts, nil
}

// Update writes every mutable column of account.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx, `
		UPDATE accounts SET
			email = $2, username = $3, password_hash = $4, is_admin = $5,
			is_verified = $6, profile_image = $7, updated_at = $8
		WHERE id = $1
	`,
		account.ID,
		account.Email,
		account.Username,
		account.PasswordHash,
		account.Admin,
		account.Verified,
		account.ProfileImage,
		account.UpdatedAt,
	)
	if isUniqueViolation(err, accountsEmailKey) {
		return oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", account.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", account.ID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an account. Its reset grants go with it.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans one row. pgx.ErrNoRows is returned unwrapped for the
// caller to map.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var a auth.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Username,
		&a.PasswordHash,
		&a.Admin,
		&a.Verified,
		&a.ProfileImage,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("operation", "scan account").Wrap(err)
	}
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
