// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
)

type resetRecord struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"account_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// PasswordResetRepository implements auth.PasswordResetRepository on
// Redis. Grants are keyed by token hash, with an ID index and a per-account
// set for DeleteByAccount.
type PasswordResetRepository struct {
	client goredis.UniversalClient
	keys   keys
}

// NewPasswordResetRepository creates a new PasswordResetRepository. An
// empty prefix uses DefaultPrefix.
func NewPasswordResetRepository(client goredis.UniversalClient, prefix string) *PasswordResetRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &PasswordResetRepository{client: client, keys: keys{prefix: prefix}}
}

// Save stores a new grant.
func (r *PasswordResetRepository) Save(ctx context.Context, reset *auth.PasswordReset) error {
	data, err := json.Marshal(resetRecord{
		ID:        reset.ID.String(),
		AccountID: reset.AccountID,
		TokenHash: reset.TokenHash,
		ExpiresAt: reset.ExpiresAt,
		CreatedAt: reset.CreatedAt,
	})
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").With("operation", "encode record").Wrap(err)
	}

	ttl := recordTTL(reset.ExpiresAt, reset.CreatedAt)
	account := r.keys.resetsOf(strconv.FormatInt(reset.AccountID, 10))
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.keys.reset(reset.TokenHash), data, ttl)
		pipe.Set(ctx, r.keys.resetID(reset.ID.String()), reset.TokenHash, ttl)
		pipe.SAdd(ctx, account, reset.TokenHash)
		pipe.Expire(ctx, account, ttl)
		return nil
	})
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").With("account_id", reset.AccountID).Wrap(err)
	}
	return nil
}

// FindByTokenHash retrieves a grant by its token hash.
func (r *PasswordResetRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	data, err := r.client.Get(ctx, r.keys.reset(tokenHash)).Bytes()
	if nf := notFound("RESET_NOT_FOUND", err); nf != nil {
		return nil, nf
	}
	if err != nil {
		return nil, oops.Code("RESET_READ_FAILED").Wrap(err)
	}
	rec, err := decode[resetRecord](data, "RESET_READ_FAILED")
	if err != nil {
		return nil, err
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", rec.ID).Wrap(err)
	}
	return &auth.PasswordReset{
		ID:        id,
		AccountID: rec.AccountID,
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Delete removes a grant by ID. GETDEL on the ID key makes it single use.
func (r *PasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	hash, err := r.client.GetDel(ctx, r.keys.resetID(id.String())).Result()
	if nf := notFound("RESET_NOT_FOUND", err); nf != nil {
		return nf
	}
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if err := r.client.Del(ctx, r.keys.reset(hash)).Err(); err != nil {
		return oops.Code("RESET_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// DeleteByAccount removes every grant for an account.
func (r *PasswordResetRepository) DeleteByAccount(ctx context.Context, accountID int64) error {
	account := r.keys.resetsOf(strconv.FormatInt(accountID, 10))
	hashes, err := r.client.SMembers(ctx, account).Result()
	if err != nil {
		return oops.Code("RESET_DELETE_BY_ACCOUNT_FAILED").With("account_id", accountID).Wrap(err)
	}

	for _, hash := range hashes {
		rec, err := r.FindByTokenHash(ctx, hash)
		if err != nil {
			continue
		}
		if err := r.client.Del(ctx, r.keys.reset(hash), r.keys.resetID(rec.ID.String())).Err(); err != nil {
			return oops.Code("RESET_DELETE_BY_ACCOUNT_FAILED").With("account_id", accountID).Wrap(err)
		}
	}
	if err := r.client.Del(ctx, account).Err(); err != nil {
		return oops.Code("RESET_DELETE_BY_ACCOUNT_FAILED").With("account_id", accountID).Wrap(err)
	}
	return nil
}

var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
