// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package store holds the Postgres plumbing shared by the repositories:
// pool setup, transaction propagation and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/hemasrilatha/cms/internal/auth"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open transactions. Satisfied by *pgxpool.Pool
// and pgxmock.PgxPoolIface.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// Conn returns the transaction carried by ctx, or db when there is none.
// Repositories call it for every statement so they join WithinTx.
func Conn(ctx context.Context, db Querier) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

// TxManager implements auth.Transactor on a DB.
type TxManager struct {
	db DB
}

// NewTxManager creates a TxManager backed by db.
func NewTxManager(db DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx begins a transaction, stores it in ctx and calls fn. It commits
// when fn returns nil and rolls back otherwise. fn's error is returned as
// is. A ctx that already carries a transaction is reused.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

var _ auth.Transactor = (*TxManager)(nil)

// ConnectOption tunes Connect.
type ConnectOption func(*connectConfig)

type connectConfig struct {
	attempts uint64
	base     time.Duration
	maxConns int32
}

// WithConnectRetries sets how many times the first ping is retried and the
// initial backoff between attempts.
func WithConnectRetries(attempts uint64, base time.Duration) ConnectOption {
	return func(c *connectConfig) {
		c.attempts = attempts
		if base > 0 {
			c.base = base
		}
	}
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) ConnectOption {
	return func(c *connectConfig) { c.maxConns = n }
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// while the database comes up.
func Connect(ctx context.Context, databaseURL string, opts ...ConnectOption) (*pgxpool.Pool, error) {
	cfg := connectConfig{attempts: 5, base: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.maxConns > 0 {
		poolCfg.MaxConns = cfg.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithCappedDuration(10*time.Second, retry.NewExponential(cfg.base))
	backoff = retry.WithMaxRetries(cfg.attempts, backoff)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", cfg.attempts+1).
			Wrap(err)
	}
	return pool, nil
}
