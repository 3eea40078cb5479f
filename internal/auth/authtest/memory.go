// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package authtest provides in-memory collaborators for exercising the auth
// flows without a database or mail server.
package authtest

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/hemasrilatha/cms/internal/auth"
)

// Accounts is an in-memory auth.AccountRepository with a unique email index.
type Accounts struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]auth.Account
}

// NewAccounts creates an empty Accounts.
func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[int64]auth.Account)}
}

func (r *Accounts) emailTaken(email string, except int64) bool {
	for id, a := range r.byID {
		if id != except && a.Email == email {
			return true
		}
	}
	return false
}

// Create implements auth.AccountRepository.
func (r *Accounts) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(account.Email, 0) {
		return auth.ErrDuplicateEmail
	}
	r.nextID++
	account.ID = r.nextID
	r.byID[account.ID] = *account
	return nil
}

// FindByID implements auth.AccountRepository.
func (r *Accounts) FindByID(_ context.Context, id int64) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &a, nil
}

// FindByEmail implements auth.AccountRepository.
func (r *Accounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, auth.ErrNotFound
}

// FindAll implements auth.AccountRepository.
func (r *Accounts) FindAll(_ context.Context) ([]*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*auth.Account, 0, len(r.byID))
	for _, a := range r.byID {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update implements auth.AccountRepository.
func (r *Accounts) Update(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[account.ID]; !ok {
		return auth.ErrNotFound
	}
	if r.emailTaken(account.Email, account.ID) {
		return auth.ErrDuplicateEmail
	}
	r.byID[account.ID] = *account
	return nil
}

// Delete implements auth.AccountRepository.
func (r *Accounts) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// Put stores an account directly, bypassing registration. For seeding tests.
func (r *Accounts) Put(account auth.Account) *auth.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == 0 {
		r.nextID++
		account.ID = r.nextID
	} else if account.ID > r.nextID {
		r.nextID = account.ID
	}
	r.byID[account.ID] = account
	return &account
}

// Len reports how many accounts are stored.
func (r *Accounts) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// VerificationTokens is an in-memory auth.VerificationTokenRepository keyed
// by email.
type VerificationTokens struct {
	mu      sync.Mutex
	byEmail map[string]auth.VerificationToken
}

// NewVerificationTokens creates an empty VerificationTokens.
func NewVerificationTokens() *VerificationTokens {
	return &VerificationTokens{byEmail: make(map[string]auth.VerificationToken)}
}

// FindByEmail implements auth.VerificationTokenRepository.
func (r *VerificationTokens) FindByEmail(_ context.Context, email string) (*auth.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &v, nil
}

// FindByEmailAndCode implements auth.VerificationTokenRepository.
func (r *VerificationTokens) FindByEmailAndCode(_ context.Context, email, code string) (*auth.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byEmail[email]
	if !ok || v.Code != code {
		return nil, auth.ErrNotFound
	}
	return &v, nil
}

// Save implements auth.VerificationTokenRepository.
func (r *VerificationTokens) Save(_ context.Context, token *auth.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byEmail[token.Email] = *token
	return nil
}

// Delete implements auth.VerificationTokenRepository.
func (r *VerificationTokens) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, v := range r.byEmail {
		if v.ID == id {
			delete(r.byEmail, email)
			return nil
		}
	}
	return auth.ErrNotFound
}

// DeleteByEmail implements auth.VerificationTokenRepository.
func (r *VerificationTokens) DeleteByEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byEmail, email)
	return nil
}

// Has reports whether a token is held for email.
func (r *VerificationTokens) Has(email string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byEmail[email]
	return ok
}

// PasswordResets is an in-memory auth.PasswordResetRepository.
type PasswordResets struct {
	mu   sync.Mutex
	byID map[ulid.ULID]auth.PasswordReset
}

// NewPasswordResets creates an empty PasswordResets.
func NewPasswordResets() *PasswordResets {
	return &PasswordResets{byID: make(map[ulid.ULID]auth.PasswordReset)}
}

// Save implements auth.PasswordResetRepository.
func (r *PasswordResets) Save(_ context.Context, reset *auth.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[reset.ID] = *reset
	return nil
}

// FindByTokenHash implements auth.PasswordResetRepository.
func (r *PasswordResets) FindByTokenHash(_ context.Context, tokenHash string) (*auth.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.byID {
		if v.TokenHash == tokenHash {
			return &v, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Delete implements auth.PasswordResetRepository.
func (r *PasswordResets) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// DeleteByAccount implements auth.PasswordResetRepository.
func (r *PasswordResets) DeleteByAccount(_ context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.byID {
		if v.AccountID == accountID {
			delete(r.byID, id)
		}
	}
	return nil
}

// CountFor reports how many grants exist for the account.
func (r *PasswordResets) CountFor(accountID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.byID {
		if v.AccountID == accountID {
			n++
		}
	}
	return n
}

var (
	_ auth.AccountRepository           = (*Accounts)(nil)
	_ auth.VerificationTokenRepository = (*VerificationTokens)(nil)
	_ auth.PasswordResetRepository     = (*PasswordResets)(nil)
)
