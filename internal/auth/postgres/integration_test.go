// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/auth/postgres"
	"github.com/hemasrilatha/cms/internal/store"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("cms_test"),
		tcpostgres.WithUsername("cms"),
		tcpostgres.WithPassword("cms"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err == nil {
		err = migrator.Up()
		_ = migrator.Close()
	}
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}

	testPool, err = store.Connect(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}

	code := m.Run()
	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func createAccount(ctx context.Context, t *testing.T, email string) *auth.Account {
	t.Helper()
	a := testAccount()
	a.Email = email
	require.NoError(t, postgres.NewAccountRepository(testPool).Create(ctx, a))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, a.ID)
	})
	return a
}

func TestIntegration_AccountEmailIsUnique(t *testing.T) {
	ctx := context.Background()
	createAccount(ctx, t, "unique@x.com")

	dup := testAccount()
	dup.Email = "unique@x.com"
	err := postgres.NewAccountRepository(testPool).Create(ctx, dup)
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestIntegration_ProfileImageRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	a := createAccount(ctx, t, "image@x.com")

	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ProfileImage)

	url := "https://img/x.png"
	got.ProfileImage = &url
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.FindByEmail(ctx, "image@x.com")
	require.NoError(t, err)
	require.NotNil(t, got.ProfileImage)
	assert.Equal(t, url, *got.ProfileImage)
}

func TestIntegration_ResetsCascadeWithAccount(t *testing.T) {
	ctx := context.Background()
	a := createAccount(ctx, t, "cascade@x.com")

	resets, err := auth.NewResetStore(postgres.NewPasswordResetRepository(testPool))
	require.NoError(t, err)
	token, err := resets.Issue(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, postgres.NewAccountRepository(testPool).Delete(ctx, a.ID))

	ok, err := resets.IsValid(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_OTPSingleUseUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	otps, err := auth.NewOTPStore(postgres.NewVerificationTokenRepository(testPool))
	require.NoError(t, err)

	code, err := otps.Issue(ctx, "race@x.com", auth.PendingAccount{Email: "race@x.com", Username: "race", PasswordHash: "h"})
	require.NoError(t, err)

	const callers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		denied int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := otps.Verify(ctx, "race@x.com", code, auth.PendingKindAccount)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if auth.HasCode(err, auth.CodeOTPInvalid) {
				denied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, denied)
}

func TestIntegration_FlowOverPostgres(t *testing.T) {
	ctx := context.Background()
	accounts := postgres.NewAccountRepository(testPool)
	otps, err := auth.NewOTPStore(postgres.NewVerificationTokenRepository(testPool))
	require.NoError(t, err)
	resets, err := auth.NewResetStore(postgres.NewPasswordResetRepository(testPool))
	require.NoError(t, err)
	codec, err := auth.NewSessionCodec([]byte("integration-secret-integration-secret-0123"))
	require.NoError(t, err)

	notifier := &capture{}
	c := auth.Collaborators{
		Accounts: accounts,
		OTPs:     otps,
		Resets:   resets,
		Hasher:   auth.NewArgon2idHasher(),
		Sessions: codec,
		Notifier: notifier,
		Tx:       store.NewTxManager(testPool),
	}
	reg, err := auth.NewRegistrationService(c)
	require.NoError(t, err)
	profile, err := auth.NewProfileService(c)
	require.NoError(t, err)

	_, err = reg.Initiate(ctx, auth.SignupRequest{Email: "flow@x.com", Username: "flow", Password: "secret1"})
	require.NoError(t, err)
	res, err := reg.Verify(ctx, "flow@x.com", notifier.secret)
	require.NoError(t, err)
	assert.NotZero(t, res.Account.ID)

	_, err = profile.DeleteAccount(ctx, "flow@x.com")
	require.NoError(t, err)
	_, err = accounts.FindByEmail(ctx, "flow@x.com")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

type capture struct {
	secret string
}

func (c *capture) SendSignupCode(_ context.Context, _, code string) error {
	c.secret = code
	return nil
}

func (c *capture) SendEmailChangeCode(_ context.Context, _, code string) error {
	c.secret = code
	return nil
}

func (c *capture) SendPasswordReset(_ context.Context, _, token string) error {
	c.secret = token
	return nil
}
