// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/pkg/errutil"
)

func TestAccountView_OmitsPasswordHash(t *testing.T) {
	img := "https://images.test/a.png"
	account := &auth.Account{
		ID:           5,
		Email:        "a@x.com",
		Username:     "alice",
		PasswordHash: "$argon2id$v=19$secret",
		Verified:     true,
		ProfileImage: &img,
	}

	data, err := json.Marshal(account.View())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "argon2id")
	assert.JSONEq(t, `{
		"id": 5,
		"username": "alice",
		"email": "a@x.com",
		"admin": false,
		"verified": true,
		"profileImage": "https://images.test/a.png"
	}`, string(data))
}

func TestViews_EmptyIsNotNil(t *testing.T) {
	views := auth.Views(nil)
	require.NotNil(t, views)
	assert.Empty(t, views)
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"simple", "alice", false},
		{"unicode", "Zoë", false},
		{"blank", "   ", true},
		{"too long", strings.Repeat("a", auth.MaxUsernameLength+1), true},
		{"control character", "ali\x00ce", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateUsername(tt.username)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_USERNAME")
			assert.Equal(t, auth.KindValidation, auth.KindOf(err))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	require.NoError(t, auth.ValidatePassword("secret"))
	err := auth.ValidatePassword("12345")
	errutil.AssertErrorCode(t, err, auth.CodePasswordTooShort)
}
