// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package mocks provides testify mocks for the auth collaborator interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/hemasrilatha/cms/internal/auth"
)

// T is the subset of *testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t T) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// ptr returns the first return value as *R, allowing a nil literal.
func ptr[R any](args mock.Arguments, i int) *R {
	v := args.Get(i)
	if v == nil {
		return nil
	}
	return v.(*R)
}

// MockAccountRepository mocks auth.AccountRepository.
type MockAccountRepository struct{ mock.Mock }

// NewMockAccountRepository creates a mock that asserts its expectations on cleanup.
func NewMockAccountRepository(t T) *MockAccountRepository {
	m := &MockAccountRepository{}
	register(&m.Mock, t)
	return m
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id int64) (*auth.Account, error) {
	args := m.Called(ctx, id)
	return ptr[auth.Account](args, 0), args.Error(1)
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	return ptr[auth.Account](args, 0), args.Error(1)
}

func (m *MockAccountRepository) FindAll(ctx context.Context) ([]*auth.Account, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]*auth.Account)
	return accounts, args.Error(1)
}

func (m *MockAccountRepository) Update(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// MockVerificationTokenRepository mocks auth.VerificationTokenRepository.
type MockVerificationTokenRepository struct{ mock.Mock }

// NewMockVerificationTokenRepository creates a mock that asserts its expectations on cleanup.
func NewMockVerificationTokenRepository(t T) *MockVerificationTokenRepository {
	m := &MockVerificationTokenRepository{}
	register(&m.Mock, t)
	return m
}

func (m *MockVerificationTokenRepository) FindByEmail(ctx context.Context, email string) (*auth.VerificationToken, error) {
	args := m.Called(ctx, email)
	return ptr[auth.VerificationToken](args, 0), args.Error(1)
}

func (m *MockVerificationTokenRepository) FindByEmailAndCode(ctx context.Context, email, code string) (*auth.VerificationToken, error) {
	args := m.Called(ctx, email, code)
	return ptr[auth.VerificationToken](args, 0), args.Error(1)
}

func (m *MockVerificationTokenRepository) Save(ctx context.Context, token *auth.VerificationToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockVerificationTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockVerificationTokenRepository) DeleteByEmail(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// MockPasswordResetRepository mocks auth.PasswordResetRepository.
type MockPasswordResetRepository struct{ mock.Mock }

// NewMockPasswordResetRepository creates a mock that asserts its expectations on cleanup.
func NewMockPasswordResetRepository(t T) *MockPasswordResetRepository {
	m := &MockPasswordResetRepository{}
	register(&m.Mock, t)
	return m
}

func (m *MockPasswordResetRepository) Save(ctx context.Context, reset *auth.PasswordReset) error {
	return m.Called(ctx, reset).Error(0)
}

func (m *MockPasswordResetRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	args := m.Called(ctx, tokenHash)
	return ptr[auth.PasswordReset](args, 0), args.Error(1)
}

func (m *MockPasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPasswordResetRepository) DeleteByAccount(ctx context.Context, accountID int64) error {
	return m.Called(ctx, accountID).Error(0)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct{ mock.Mock }

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t T) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(&m.Mock, t)
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockNotifier mocks auth.Notifier.
type MockNotifier struct{ mock.Mock }

// NewMockNotifier creates a mock that asserts its expectations on cleanup.
func NewMockNotifier(t T) *MockNotifier {
	m := &MockNotifier{}
	register(&m.Mock, t)
	return m
}

func (m *MockNotifier) SendSignupCode(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

func (m *MockNotifier) SendEmailChangeCode(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	return m.Called(ctx, email, token).Error(0)
}

// MockImageStore mocks auth.ImageStore.
type MockImageStore struct{ mock.Mock }

// NewMockImageStore creates a mock that asserts its expectations on cleanup.
func NewMockImageStore(t T) *MockImageStore {
	m := &MockImageStore{}
	register(&m.Mock, t)
	return m
}

func (m *MockImageStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, key, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockImageStore) Delete(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

var (
	_ auth.AccountRepository           = (*MockAccountRepository)(nil)
	_ auth.VerificationTokenRepository = (*MockVerificationTokenRepository)(nil)
	_ auth.PasswordResetRepository     = (*MockPasswordResetRepository)(nil)
	_ auth.PasswordHasher              = (*MockPasswordHasher)(nil)
	_ auth.Notifier                    = (*MockNotifier)(nil)
	_ auth.ImageStore                  = (*MockImageStore)(nil)
)
