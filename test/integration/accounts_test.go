// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hemasrilatha/cms/internal/auth"
	authpg "github.com/hemasrilatha/cms/internal/auth/postgres"
	authredis "github.com/hemasrilatha/cms/internal/auth/redis"
	"github.com/hemasrilatha/cms/internal/notify"
	"github.com/hemasrilatha/cms/internal/store"
	"github.com/hemasrilatha/cms/internal/web"
)

const (
	resetBase = "https://cms.example.com/reset-password"
	secret    = "integration-secret-0123456789abcdef"
)

var codePattern = regexp.MustCompile(`<div class="code">(\d{6})</div>`)

// stack is the API wired the way serve wires it, minus the listeners.
type stack struct {
	pool   *pgxpool.Pool
	mailer *notify.LogMailer
	server *httptest.Server
	client *http.Client
}

type tokenStores struct {
	tokens auth.VerificationTokenRepository
	resets auth.PasswordResetRepository
}

func startPostgres(ctx context.Context) (string, func()) {
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("cms_test"),
		postgres.WithUsername("cms"),
		postgres.WithPassword("cms"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	return connStr, func() { _ = container.Terminate(ctx) }
}

func newStack(ctx context.Context, connStr string, pick func(pool *pgxpool.Pool) tokenStores) *stack {
	pool, err := store.Connect(ctx, connStr)
	Expect(err).NotTo(HaveOccurred())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := pick(pool)

	codec, err := auth.NewSessionCodec([]byte(secret))
	Expect(err).NotTo(HaveOccurred())
	otps, err := auth.NewOTPStore(stores.tokens)
	Expect(err).NotTo(HaveOccurred())
	resets, err := auth.NewResetStore(stores.resets)
	Expect(err).NotTo(HaveOccurred())

	mailer := notify.NewLogMailer(logger)
	dispatcher, err := notify.NewDispatcher(mailer, notify.DispatcherConfig{
		ResetURLBase: resetBase,
		Logger:       logger,
	})
	Expect(err).NotTo(HaveOccurred())

	c := auth.Collaborators{
		Accounts: authpg.NewAccountRepository(pool),
		OTPs:     otps,
		Resets:   resets,
		Hasher:   auth.NewArgon2idHasher(),
		Sessions: codec,
		Notifier: dispatcher,
		Tx:       store.NewTxManager(pool),
	}
	opts := []auth.Option{auth.WithLogger(logger)}

	svc := web.Services{Codec: codec}
	svc.Registration, err = auth.NewRegistrationService(c, opts...)
	Expect(err).NotTo(HaveOccurred())
	svc.Sessions, err = auth.NewSessionService(c, opts...)
	Expect(err).NotTo(HaveOccurred())
	svc.Recovery, err = auth.NewRecoveryService(c, auth.RecoveryPolicy{}, opts...)
	Expect(err).NotTo(HaveOccurred())
	svc.Profile, err = auth.NewProfileService(c, opts...)
	Expect(err).NotTo(HaveOccurred())
	svc.Admin, err = auth.NewAdminService(c, opts...)
	Expect(err).NotTo(HaveOccurred())

	handler, err := web.NewHandler(svc, web.Options{Logger: logger})
	Expect(err).NotTo(HaveOccurred())

	return &stack{
		pool:   pool,
		mailer: mailer,
		server: httptest.NewServer(handler),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *stack) close() {
	s.server.Close()
	s.pool.Close()
}

func (s *stack) call(method, path string, body any, token string) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &out)).To(Succeed())
	}
	return resp.StatusCode, out
}

func (s *stack) lastCode() string {
	sent := s.mailer.Last()
	Expect(sent).NotTo(BeNil())
	m := codePattern.FindStringSubmatch(sent.Body)
	Expect(m).To(HaveLen(2), "mail body carries a code")
	return m[1]
}

func (s *stack) lastResetToken() string {
	sent := s.mailer.Last()
	Expect(sent).NotTo(BeNil())
	m := regexp.MustCompile(regexp.QuoteMeta(resetBase) + `/([0-9a-f]+)`).FindStringSubmatch(sent.Body)
	Expect(m).To(HaveLen(2), "mail body carries a reset link")
	return m[1]
}

// register runs signup through to verification and returns the session token.
func (s *stack) register(email, username, password string) string {
	status, body := s.call(http.MethodPost, "/api/auth/signup/initiate", map[string]string{
		"email": email, "username": username, "password": password,
	}, "")
	Expect(status).To(Equal(http.StatusOK))
	Expect(body["message"]).To(Equal("Verification code sent to " + email))

	status, body = s.call(http.MethodPost, "/api/auth/signup/verify", map[string]string{
		"email": email, "otp": s.lastCode(),
	}, "")
	Expect(status).To(Equal(http.StatusCreated))
	Expect(body["message"]).To(Equal("Registration successful"))
	return body["token"].(string)
}

func (s *stack) count(ctx context.Context, query string, args ...any) int {
	var n int
	Expect(s.pool.QueryRow(ctx, query, args...).Scan(&n)).To(Succeed())
	return n
}

var _ = Describe("Account lifecycle", Ordered, func() {
	var (
		ctx       context.Context
		connStr   string
		terminate func()
	)

	BeforeAll(func() {
		ctx = context.Background()
		connStr, terminate = startPostgres(ctx)
	})

	AfterAll(func() {
		if terminate != nil {
			terminate()
		}
	})

	Describe("with PostgreSQL token stores", Ordered, func() {
		var s *stack

		BeforeAll(func() {
			s = newStack(ctx, connStr, func(pool *pgxpool.Pool) tokenStores {
				return tokenStores{
					tokens: authpg.NewVerificationTokenRepository(pool),
					resets: authpg.NewPasswordResetRepository(pool),
				}
			})
		})

		AfterAll(func() {
			s.close()
		})

		It("registers, signs in and reads the profile", func() {
			s.register("ana@example.com", "ana", "first-pass")

			Expect(s.count(ctx, `SELECT count(*) FROM verification_tokens WHERE email = $1`,
				"ana@example.com")).To(Equal(0))

			status, body := s.call(http.MethodPost, "/api/auth/signin", map[string]string{
				"email": "ana@example.com", "password": "first-pass",
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["isAdmin"]).To(BeFalse())
			token := body["token"].(string)

			status, body = s.call(http.MethodGet, "/api/user/details", nil, token)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["username"]).To(Equal("ana"))
			Expect(body["verified"]).To(BeTrue())
			Expect(body).NotTo(HaveKey("passwordHash"))
		})

		It("rejects a second signup for a registered email", func() {
			status, _ := s.call(http.MethodPost, "/api/auth/signup/initiate", map[string]string{
				"email": "ana@example.com", "username": "other", "password": "pw",
			}, "")
			Expect(status).To(Equal(http.StatusConflict))
		})

		It("resets a forgotten password once", func() {
			status, body := s.call(http.MethodPost, "/api/auth/forgot-password",
				map[string]string{"email": "ana@example.com"}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["message"]).To(Equal("Reset link sent successfully"))

			token := s.lastResetToken()
			Expect(s.count(ctx, `SELECT count(*) FROM password_resets WHERE token_hash = $1`, token)).
				To(Equal(0), "only the digest is stored")

			status, body = s.call(http.MethodGet, "/api/auth/verify-reset-token/"+token, nil, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["valid"]).To(BeTrue())

			reset := map[string]string{"token": token, "newPassword": "second-pass"}
			status, body = s.call(http.MethodPost, "/api/auth/reset-password", reset, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["message"]).To(Equal("Password reset successful"))

			status, _ = s.call(http.MethodPost, "/api/auth/reset-password", reset, "")
			Expect(status).To(Equal(http.StatusUnauthorized))

			status, _ = s.call(http.MethodPost, "/api/auth/signin", map[string]string{
				"email": "ana@example.com", "password": "second-pass",
			}, "")
			Expect(status).To(Equal(http.StatusOK))
		})

		It("changes the email after confirming the code", func() {
			token := s.register("ben@example.com", "ben", "ben-pass")

			status, _ := s.call(http.MethodPost, "/api/user/email/update/initiate",
				map[string]string{"email": "benjamin@example.com"}, token)
			Expect(status).To(Equal(http.StatusOK))
			Expect(s.mailer.Last().To).To(Equal("benjamin@example.com"))

			status, body := s.call(http.MethodPost, "/api/user/email/update/verify",
				map[string]string{"otp": s.lastCode()}, token)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["message"]).To(Equal("Email updated successfully"))
			fresh := body["token"].(string)

			status, body = s.call(http.MethodGet, "/api/user/details", nil, fresh)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["email"]).To(Equal("benjamin@example.com"))
		})

		It("drops pending resets when the account is deleted", func() {
			token := s.register("cleo@example.com", "cleo", "cleo-pass")
			status, _ := s.call(http.MethodPost, "/api/auth/forgot-password",
				map[string]string{"email": "cleo@example.com"}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(s.count(ctx, `SELECT count(*) FROM password_resets r
				JOIN accounts a ON a.id = r.account_id WHERE a.email = $1`, "cleo@example.com")).To(Equal(1))

			status, body := s.call(http.MethodDelete, "/api/user", nil, token)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["message"]).To(Equal("Account deleted successfully"))

			Expect(s.count(ctx, `SELECT count(*) FROM accounts WHERE email = $1`, "cleo@example.com")).To(Equal(0))
			Expect(s.count(ctx, `SELECT count(*) FROM password_resets`)).To(Equal(0))
		})

		It("lets an admin list and remove accounts", func() {
			_, err := s.pool.Exec(ctx, `UPDATE accounts SET is_admin = true WHERE email = $1`, "ana@example.com")
			Expect(err).NotTo(HaveOccurred())

			status, body := s.call(http.MethodPost, "/api/auth/signin", map[string]string{
				"email": "ana@example.com", "password": "second-pass",
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["isAdmin"]).To(BeTrue())
			admin := body["token"].(string)

			req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/admin/users", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Bearer "+admin)
			resp, err := s.client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			var users []map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&users)).To(Succeed())
			Expect(resp.Body.Close()).To(Succeed())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(users).To(HaveLen(2))

			status, body = s.call(http.MethodDelete, "/api/admin/users/benjamin@example.com", nil, admin)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["message"]).To(Equal("User deleted successfully"))
		})
	})

	Describe("with Redis token stores", Ordered, func() {
		var (
			s      *stack
			mr     *miniredis.Miniredis
			client *goredis.Client
		)

		BeforeAll(func() {
			var err error
			mr, err = miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			client = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

			s = newStack(ctx, connStr, func(*pgxpool.Pool) tokenStores {
				return tokenStores{
					tokens: authredis.NewVerificationTokenRepository(client, "cms-it"),
					resets: authredis.NewPasswordResetRepository(client, "cms-it"),
				}
			})
		})

		AfterAll(func() {
			s.close()
			_ = client.Close()
			mr.Close()
		})

		It("keeps codes in Redis and clears them on verify", func() {
			status, _ := s.call(http.MethodPost, "/api/auth/signup/initiate", map[string]string{
				"email": "dora@example.com", "username": "dora", "password": "dora-pass",
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(mr.Exists("cms-it:otp:dora@example.com")).To(BeTrue())
			Expect(s.count(ctx, `SELECT count(*) FROM verification_tokens WHERE email = $1`,
				"dora@example.com")).To(Equal(0))

			status, _ = s.call(http.MethodPost, "/api/auth/signup/verify", map[string]string{
				"email": "dora@example.com", "otp": s.lastCode(),
			}, "")
			Expect(status).To(Equal(http.StatusCreated))
			Expect(mr.Exists("cms-it:otp:dora@example.com")).To(BeFalse())
		})

		It("stores reset digests under the account index", func() {
			status, _ := s.call(http.MethodPost, "/api/auth/forgot-password",
				map[string]string{"email": "dora@example.com"}, "")
			Expect(status).To(Equal(http.StatusOK))
			token := s.lastResetToken()

			keys := mr.Keys()
			Expect(strings.Join(keys, " ")).To(ContainSubstring("cms-it:reset:account:"))
			Expect(keys).NotTo(ContainElement("cms-it:reset:" + token))

			status, _ = s.call(http.MethodPost, "/api/auth/reset-password",
				map[string]string{"token": token, "newPassword": "dora-new"}, "")
			Expect(status).To(Equal(http.StatusOK))
		})
	})
})
