// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Username constraints.
const (
	MinUsernameLength = 1
	MaxUsernameLength = 64
)

// Account is a registered identity.
type Account struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Admin        bool
	Verified     bool
	ProfileImage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountView is the serialisable projection of an Account. It never carries
// the password hash.
type AccountView struct {
	ID           int64   `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	Admin        bool    `json:"admin"`
	Verified     bool    `json:"verified"`
	ProfileImage *string `json:"profileImage"`
}

// View projects the account for callers outside the core.
func (a *Account) View() AccountView {
	return AccountView{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		Admin:        a.Admin,
		Verified:     a.Verified,
		ProfileImage: a.ProfileImage,
	}
}

// Views projects a slice of accounts.
func Views(accounts []*Account) []AccountView {
	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, a.View())
	}
	return views
}

// newVerifiedAccount builds the account written when signup completes.
// Admin is never grantable through signup.
func newVerifiedAccount(p PendingAccount, now time.Time) *Account {
	return &Account{
		Email:        p.Email,
		Username:     p.Username,
		PasswordHash: p.PasswordHash,
		Admin:        false,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ValidateUsername checks a display name.
func ValidateUsername(username string) error {
	trimmed := strings.TrimSpace(username)
	n := utf8.RuneCountInString(trimmed)
	if n < MinUsernameLength {
		return validationError("AUTH_INVALID_USERNAME", "Username is required")
	}
	if n > MaxUsernameLength {
		return oops.In("auth").
			Code("AUTH_INVALID_USERNAME").
			Tags(string(KindValidation)).
			With("max", MaxUsernameLength).
			Public("Username is too long").
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return validationError("AUTH_INVALID_USERNAME", "Username contains invalid characters")
		}
	}
	return nil
}

// ValidatePassword checks the minimum length rule.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// AccountRepository manages account persistence. Implementations must enforce
// email uniqueness and report violations as ErrDuplicateEmail.
type AccountRepository interface {
	// Create stores a new account and assigns its ID.
	Create(ctx context.Context, account *Account) error

	// FindByID retrieves an account by ID.
	FindByID(ctx context.Context, id int64) (*Account, error)

	// FindByEmail retrieves an account by exact email.
	// Returns ErrNotFound if no account has the given email.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindAll lists every account ordered by ID.
	FindAll(ctx context.Context) ([]*Account, error)

	// Update saves all mutable fields of an existing account.
	Update(ctx context.Context, account *Account) error

	// Delete removes an account. Dependent reset tokens go with it.
	Delete(ctx context.Context, id int64) error
}
