// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package redis provides Redis implementations of the ephemeral token
// repositories. Records are JSON values under prefixed keys and carry a
// Redis TTL past their logical expiry, so expired records are still seen
// and removed by the auth stores while orphans age out on their own.
//
// Operations are individually atomic. They do not take part in Postgres
// transactions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "cms"

// retention is how long a record outlives its expiry in Redis.
const retention = time.Hour

// maxWatchRetries bounds optimistic transaction retries.
const maxWatchRetries = 5

type keys struct {
	prefix string
}

func (k keys) otp(email string) string { return k.prefix + ":otp:" + email }
func (k keys) otpID(id string) string { return k.prefix + ":otp:id:" + id }
func (k keys) reset(hash string) string { return k.prefix + ":reset:" + hash }
func (k keys) resetID(id string) string { return k.prefix + ":reset:id:" + id }
func (k keys) resetsOf(account string) string { return k.prefix + ":reset:account:" + account }

func recordTTL(expiresAt, createdAt time.Time) time.Duration {
	ttl := expiresAt.Sub(createdAt)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + retention
}

func decode[T any](data []byte, code string) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, oops.Code(code).With("operation", "decode record").Wrap(err)
	}
	return &v, nil
}

// getter is the read half shared by the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func notFound(code string, err error) error {
	if errors.Is(err, goredis.Nil) {
		return oops.Code(code).Wrap(auth.ErrNotFound)
	}
	return nil
}
