// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"errors"
	"strings"
)

// AdminUpdate carries an administrator's edit of an account. Empty or nil
// strings leave the field unchanged; the flags are always applied.
type AdminUpdate struct {
	NewEmail *string
	Username *string
	Password *string
	Admin    bool
	Verified bool
}

// AdminService manages accounts on behalf of administrators. Callers must
// have checked RequireRole(claims, RoleAdmin).
type AdminService struct {
	flowBase
	remover  accountRemover
	accounts AccountRepository
	hasher   PasswordHasher
}

// NewAdminService creates a new AdminService.
func NewAdminService(c Collaborators, opts ...Option) (*AdminService, error) {
	const name = "admin"
	if err := firstErr(
		requireDep(c.Accounts != nil, name, "account repository"),
		requireDep(c.OTPs != nil, name, "otp store"),
		requireDep(c.Resets != nil, name, "reset store"),
		requireDep(c.Hasher != nil, name, "password hasher"),
	); err != nil {
		return nil, err
	}
	return &AdminService{
		flowBase: newFlowBase(opts),
		remover:  newAccountRemover(c),
		accounts: c.Accounts,
		hasher:   c.Hasher,
	}, nil
}

// RequireRole returns ErrForbidden unless claims carry role.
func RequireRole(claims *SessionClaims, role Role) error {
	if claims == nil || !claims.HasRole(role) {
		return ErrForbidden
	}
	return nil
}

// ListAccounts returns every account. An empty store yields an empty list.
func (s *AdminService) ListAccounts(ctx context.Context) (views []AccountView, err error) {
	ctx, done := s.begin(ctx, "admin.list")
	defer func() { done(err) }()

	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, internalError("AUTH_ADMIN_FAILED", "FindAll", err)
	}
	return Views(accounts), nil
}

// UpdateAccount applies an administrator's edit to the account with email.
func (s *AdminService) UpdateAccount(ctx context.Context, email string, upd AdminUpdate) (msg string, err error) {
	ctx, done := s.begin(ctx, "admin.update")
	defer func() { done(err) }()

	account, err := loadAccount(ctx, s.accounts, email)
	if err != nil {
		return "", err
	}

	if upd.NewEmail != nil {
		newEmail := strings.TrimSpace(*upd.NewEmail)
		if newEmail != "" && newEmail != account.Email {
			if _, err := s.accounts.FindByEmail(ctx, newEmail); err == nil {
				return "", emailTakenByOtherError(newEmail)
			} else if !errors.Is(err, ErrNotFound) {
				return "", internalError("AUTH_ADMIN_FAILED", "FindByEmail", err)
			}
			account.Email = newEmail
		}
	}

	if upd.Username != nil && strings.TrimSpace(*upd.Username) != "" {
		if err := ValidateUsername(*upd.Username); err != nil {
			return "", err
		}
		account.Username = strings.TrimSpace(*upd.Username)
	}

	if upd.Password != nil && *upd.Password != "" {
		if err := ValidatePassword(*upd.Password); err != nil {
			return "", err
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return "", internalError("AUTH_ADMIN_FAILED", "Hash", err)
		}
		account.PasswordHash = hash
	}

	account.Admin = upd.Admin
	account.Verified = upd.Verified
	account.UpdatedAt = s.now()

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return "", emailTakenByOtherError(account.Email)
		}
		return "", internalError("AUTH_ADMIN_FAILED", "Update", err)
	}

	return "User updated successfully", nil
}

// DeleteAccount removes the account with email.
func (s *AdminService) DeleteAccount(ctx context.Context, email string) (msg string, err error) {
	ctx, done := s.begin(ctx, "admin.delete")
	defer func() { done(err) }()

	if err := s.remover.remove(ctx, s.logger, email); err != nil {
		return "", err
	}
	return "User deleted successfully", nil
}
