// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package authtest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hemasrilatha/cms/internal/auth"
)

// Secret is a session signing key usable in tests.
var Secret = []byte("0123456789abcdef0123456789abcdef-test-secret")

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Harness wires every flow service to in-memory collaborators sharing one
// clock.
type Harness struct {
	Clock    *Clock
	Accounts *Accounts
	Tokens   *VerificationTokens
	Resets   *PasswordResets
	Notifier *Notifier
	Images   *Images
	Hasher   auth.PasswordHasher
	Codec    *auth.SessionCodec

	Registration *auth.RegistrationService
	Sessions     *auth.SessionService
	Recovery     *auth.RecoveryService
	Profile      *auth.ProfileService
	Admin        *auth.AdminService
}

// HarnessOption adjusts a Harness before its services are built.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	policy auth.RecoveryPolicy
	opts   []auth.Option
}

// WithPolicy sets the recovery policy.
func WithPolicy(p auth.RecoveryPolicy) HarnessOption {
	return func(c *harnessConfig) { c.policy = p }
}

// WithServiceOptions passes options to every service.
func WithServiceOptions(opts ...auth.Option) HarnessOption {
	return func(c *harnessConfig) { c.opts = append(c.opts, opts...) }
}

// NewHarness builds a Harness. The hasher is a real Argon2idHasher.
func NewHarness(t testing.TB, opts ...HarnessOption) *Harness {
	t.Helper()

	cfg := &harnessConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Harness{
		Clock:    NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		Accounts: NewAccounts(),
		Tokens:   NewVerificationTokens(),
		Resets:   NewPasswordResets(),
		Notifier: &Notifier{},
		Images:   NewImages("https://images.test"),
		Hasher:   auth.NewArgon2idHasher(),
	}

	codec, err := auth.NewSessionCodec(Secret, auth.WithClock(h.Clock.Now), auth.WithIssuer("cms"))
	require.NoError(t, err)
	h.Codec = codec

	otps, err := auth.NewOTPStore(h.Tokens, auth.WithOTPClock(h.Clock.Now))
	require.NoError(t, err)
	resets, err := auth.NewResetStore(h.Resets, auth.WithResetClock(h.Clock.Now))
	require.NoError(t, err)

	c := auth.Collaborators{
		Accounts: h.Accounts,
		OTPs:     otps,
		Resets:   resets,
		Hasher:   h.Hasher,
		Sessions: codec,
		Notifier: h.Notifier,
		Images:   h.Images,
	}
	svcOpts := append([]auth.Option{auth.WithNow(h.Clock.Now)}, cfg.opts...)

	h.Registration, err = auth.NewRegistrationService(c, svcOpts...)
	require.NoError(t, err)
	h.Sessions, err = auth.NewSessionService(c, svcOpts...)
	require.NoError(t, err)
	h.Recovery, err = auth.NewRecoveryService(c, cfg.policy, svcOpts...)
	require.NoError(t, err)
	h.Profile, err = auth.NewProfileService(c, svcOpts...)
	require.NoError(t, err)
	h.Admin, err = auth.NewAdminService(c, svcOpts...)
	require.NoError(t, err)

	return h
}

// SeedAccount stores a verified account with password.
func (h *Harness) SeedAccount(t testing.TB, email, username, password string, admin bool) *auth.Account {
	t.Helper()
	hash, err := h.Hasher.Hash(password)
	require.NoError(t, err)
	now := h.Clock.Now()
	return h.Accounts.Put(auth.Account{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Admin:        admin,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}
