// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/auth/authtest"
	"github.com/hemasrilatha/cms/internal/auth/mocks"
	"github.com/hemasrilatha/cms/pkg/errutil"
)

func TestSessionService_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("user gets a user token", func(t *testing.T) {
		h := authtest.NewHarness(t)
		h.SeedAccount(t, "a@x.com", "alice", "secret1", false)

		res, err := h.Sessions.SignIn(ctx, "a@x.com", "secret1")
		require.NoError(t, err)
		assert.False(t, res.IsAdmin)
		assert.Equal(t, "alice", res.Account.Username)

		claims, err := h.Codec.Parse(res.Token)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", claims.Subject)
		assert.Equal(t, "ROLE_USER", claims.Roles)
	})

	t.Run("admin gets the admin role", func(t *testing.T) {
		h := authtest.NewHarness(t)
		h.SeedAccount(t, "root@x.com", "root", "secret1", true)

		res, err := h.Sessions.SignIn(ctx, "root@x.com", "secret1")
		require.NoError(t, err)
		assert.True(t, res.IsAdmin)

		claims, err := h.Codec.Parse(res.Token)
		require.NoError(t, err)
		assert.True(t, claims.HasRole(auth.RoleAdmin))
		assert.True(t, claims.HasRole(auth.RoleUser))
	})

	t.Run("wrong password issues no token", func(t *testing.T) {
		h := authtest.NewHarness(t)
		h.SeedAccount(t, "a@x.com", "alice", "secret1", false)

		res, err := h.Sessions.SignIn(ctx, "a@x.com", "wrong")
		assert.Nil(t, res)
		errutil.AssertErrorCode(t, err, "AUTH_INCORRECT_PASSWORD")
		errutil.AssertPublicMessage(t, err, "Incorrect Password")
		assert.Equal(t, auth.KindAuth, auth.KindOf(err))
	})

	t.Run("unknown email", func(t *testing.T) {
		h := authtest.NewHarness(t)

		_, err := h.Sessions.SignIn(ctx, "ghost@x.com", "secret1")
		errutil.AssertErrorCode(t, err, auth.CodeNotRegistered)
		errutil.AssertPublicMessage(t, err, "ghost@x.com is not registered.")
		assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
	})

	t.Run("missing fields", func(t *testing.T) {
		h := authtest.NewHarness(t)
		_, err := h.Sessions.SignIn(ctx, "", "secret1")
		errutil.AssertErrorCode(t, err, "AUTH_FIELDS_REQUIRED")
	})

	t.Run("legacy bcrypt hash is upgraded", func(t *testing.T) {
		h := authtest.NewHarness(t)
		legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
		require.NoError(t, err)
		account := h.Accounts.Put(auth.Account{Email: "old@x.com", Username: "old", PasswordHash: string(legacy), Verified: true})

		_, err = h.Sessions.SignIn(ctx, "old@x.com", "secret1")
		require.NoError(t, err)

		stored, err := h.Accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.False(t, h.Hasher.NeedsUpgrade(stored.PasswordHash))
	})

	t.Run("failed upgrade does not fail sign-in", func(t *testing.T) {
		accounts := mocks.NewMockAccountRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		h := authtest.NewHarness(t)
		svc, err := auth.NewSessionService(auth.Collaborators{Accounts: accounts, Hasher: hasher, Sessions: h.Codec})
		require.NoError(t, err)

		account := &auth.Account{ID: 1, Email: "a@x.com", PasswordHash: "$2a$legacy"}
		accounts.On("FindByEmail", mock.Anything, "a@x.com").Return(account, nil)
		hasher.On("Verify", "secret1", "$2a$legacy").Return(true, nil)
		hasher.On("NeedsUpgrade", "$2a$legacy").Return(true)
		hasher.On("Hash", "secret1").Return("$argon2id$new", nil)
		accounts.On("Update", mock.Anything, mock.AnythingOfType("*auth.Account")).Return(errors.New("db down"))

		res, err := svc.SignIn(ctx, "a@x.com", "secret1")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
	})
}
