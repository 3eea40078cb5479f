// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package postgres provides PostgreSQL implementations of the auth
// repositories. Every statement runs through store.Conn, so the
// repositories take part in store.TxManager transactions.
package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const accountsEmailKey = "accounts_email_key"

// isUniqueViolation reports whether err is a unique violation on constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}
