// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/auth/authtest"
)

func TestSignupThenSignIn(t *testing.T) {
	ctx := context.Background()
	h := authtest.NewHarness(t)

	_, err := h.Registration.Initiate(ctx, auth.SignupRequest{Email: "a@x.com", Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	pending, err := h.Tokens.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, pending.Code)
	assert.Equal(t, h.Clock.Now().Add(10*time.Minute), pending.ExpiresAt)

	code, err := h.Notifier.Last(authtest.KindSignupCode, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, pending.Code, code)

	res, err := h.Registration.Verify(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.NotZero(t, res.Account.ID)
	assert.True(t, res.Account.Verified)
	assert.NotEmpty(t, res.Token)
	assert.False(t, h.Tokens.Has("a@x.com"))

	signIn, err := h.Sessions.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.False(t, signIn.IsAdmin)

	subject, err := h.Codec.ExtractSubject(signIn.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", subject)
}
