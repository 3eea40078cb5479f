// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"errors"
	"strings"
)

// SignInResult is returned on successful sign-in.
type SignInResult struct {
	Token   string      `json:"token"`
	IsAdmin bool        `json:"isAdmin"`
	Account AccountView `json:"user"`
}

// SessionService exchanges credentials for session tokens.
type SessionService struct {
	flowBase
	accounts AccountRepository
	hasher   PasswordHasher
	sessions *SessionCodec
}

// NewSessionService creates a new SessionService.
func NewSessionService(c Collaborators, opts ...Option) (*SessionService, error) {
	const name = "session"
	if err := firstErr(
		requireDep(c.Accounts != nil, name, "account repository"),
		requireDep(c.Hasher != nil, name, "password hasher"),
		requireDep(c.Sessions != nil, name, "session codec"),
	); err != nil {
		return nil, err
	}
	return &SessionService{
		flowBase: newFlowBase(opts),
		accounts: c.Accounts,
		hasher:   c.Hasher,
		sessions: c.Sessions,
	}, nil
}

// SignIn checks credentials and issues a session token carrying the
// account's current roles.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (res *SignInResult, err error) {
	ctx, done := s.begin(ctx, "signin")
	defer func() { done(err) }()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, validationError("AUTH_FIELDS_REQUIRED", "Email and password are required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notRegisteredError(email)
		}
		return nil, internalError("AUTH_SIGNIN_FAILED", "FindByEmail", err)
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, internalError("AUTH_SIGNIN_FAILED", "Verify", err)
	}
	if !ok {
		return nil, authError("AUTH_INCORRECT_PASSWORD", "Incorrect Password")
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, password)
	}

	roles := RolesFor(account)
	token, err := s.sessions.Issue(account.Email, roles)
	if err != nil {
		return nil, internalError("AUTH_SIGNIN_FAILED", "IssueSession", err)
	}

	return &SignInResult{
		Token:   token,
		IsAdmin: account.Admin,
		Account: account.View(),
	}, nil
}

// upgradeHash rehashes a legacy digest. Sign-in succeeds regardless.
func (s *SessionService) upgradeHash(ctx context.Context, account *Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to rehash legacy password", "account_id", account.ID, "error", err)
		return
	}
	previous := account.PasswordHash
	account.PasswordHash = hash
	account.UpdatedAt = s.now()
	if err := s.accounts.Update(ctx, account); err != nil {
		account.PasswordHash = previous
		s.logger.WarnContext(ctx, "failed to store upgraded password hash", "account_id", account.ID, "error", err)
	}
}
