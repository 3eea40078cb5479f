// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/auth/authtest"
	"github.com/hemasrilatha/cms/pkg/errutil"
)

func TestRequireRole(t *testing.T) {
	admin := &auth.SessionClaims{Roles: "ROLE_USER,ROLE_ADMIN"}
	user := &auth.SessionClaims{Roles: "ROLE_USER"}

	require.NoError(t, auth.RequireRole(admin, auth.RoleAdmin))
	err := auth.RequireRole(user, auth.RoleAdmin)
	errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	assert.Equal(t, auth.KindForbidden, auth.KindOf(err))
	errutil.AssertErrorCode(t, auth.RequireRole(nil, auth.RoleUser), auth.CodeForbidden)
}

func TestAdminService_ListAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store is an empty list", func(t *testing.T) {
		h := authtest.NewHarness(t)
		views, err := h.Admin.ListAccounts(ctx)
		require.NoError(t, err)
		require.NotNil(t, views)
		assert.Empty(t, views)
	})

	t.Run("lists every account in id order", func(t *testing.T) {
		h := authtest.NewHarness(t)
		h.SeedAccount(t, "a@x.com", "alice", "secret1", false)
		h.SeedAccount(t, "b@x.com", "bob", "secret1", true)

		views, err := h.Admin.ListAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, "a@x.com", views[0].Email)
		assert.True(t, views[1].Admin)
	})
}

func TestAdminService_UpdateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("applies every field", func(t *testing.T) {
		h := authtest.NewHarness(t)
		h.SeedAccount(t, "a@x.com", "alice", "secret1", false)

		msg, err := h.Admin.UpdateAccount(ctx, "a@x.com", auth.AdminUpdate{
			NewEmail: strPtr("alice@x.com"),
			Username: strPtr("Alice"),
			Password: strPtr("rotated1"),
			Admin:    true,
			Verified: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "User updated successfully", msg)

		res, err := h.Sessions.SignIn(ctx, "alice@x.com", "rotated1")
		require.NoError(t, err)
		assert.True(t, res.IsAdmin)
		assert.Equal(t, "Alice", res.Account.Username)
	})

	t.Run("taken email conflicts", func(t *testing.T) {
		h := authtest.NewHarness(t)
		h.SeedAccount(t, "a@x.com", "alice", "secret1", false)
		h.SeedAccount(t, "b@x.com", "bob", "secret1", false)

		_, err := h.Admin.UpdateAccount(ctx, "a@x.com", auth.AdminUpdate{NewEmail: strPtr("b@x.com"), Verified: true})
		errutil.AssertErrorCode(t, err, auth.CodeEmailTaken)
	})

	t.Run("unknown account", func(t *testing.T) {
		h := authtest.NewHarness(t)
		_, err := h.Admin.UpdateAccount(ctx, "gone@x.com", auth.AdminUpdate{})
		errutil.AssertErrorCode(t, err, auth.CodeAccountMissing)
	})

	t.Run("short password", func(t *testing.T) {
		h := authtest.NewHarness(t)
		h.SeedAccount(t, "a@x.com", "alice", "secret1", false)
		_, err := h.Admin.UpdateAccount(ctx, "a@x.com", auth.AdminUpdate{Password: strPtr("123")})
		errutil.AssertErrorCode(t, err, auth.CodePasswordTooShort)
	})
}

func TestAdminService_DeleteAccount(t *testing.T) {
	ctx := context.Background()
	h := authtest.NewHarness(t)
	h.SeedAccount(t, "a@x.com", "alice", "secret1", false)

	msg, err := h.Admin.DeleteAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "User deleted successfully", msg)
	assert.Equal(t, 0, h.Accounts.Len())

	_, err = h.Admin.DeleteAccount(ctx, "a@x.com")
	errutil.AssertErrorCode(t, err, auth.CodeAccountMissing)
}
