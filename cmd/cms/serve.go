// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hemasrilatha/cms/internal/auth"
	authpg "github.com/hemasrilatha/cms/internal/auth/postgres"
	authredis "github.com/hemasrilatha/cms/internal/auth/redis"
	"github.com/hemasrilatha/cms/internal/config"
	"github.com/hemasrilatha/cms/internal/logging"
	"github.com/hemasrilatha/cms/internal/media"
	"github.com/hemasrilatha/cms/internal/notify"
	"github.com/hemasrilatha/cms/internal/observability"
	"github.com/hemasrilatha/cms/internal/store"
	"github.com/hemasrilatha/cms/internal/web"
	"github.com/hemasrilatha/cms/pkg/errutil"
)

const (
	serviceName     = "cms"
	shutdownTimeout = 10 * time.Second
	mailTimeout     = 15 * time.Second
	mailRetryBase   = 500 * time.Millisecond
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmdWithDeps(nil)
}

func newServeCmdWithDeps(deps *ServeDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API",
		Long: `Start the JSON account API together with the metrics and health
server. The process shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}

	defaults := config.Defaults()
	flags := cmd.Flags()
	flags.String("addr", defaults["http.addr"].(string), "API listen address")
	flags.String("metrics-addr", defaults["metrics.addr"].(string), "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", defaults["log.format"].(string), "log format (json or text)")
	flags.String("log-level", defaults["log.level"].(string), "log level (debug, info, warn, error)")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.Bool("auto-migrate", false, "apply pending migrations before serving")
	flags.String("mail-driver", defaults["mail.driver"].(string), "mail transport (smtp or log)")

	return cmd
}

func withServeDefaults(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoresFactory == nil {
		deps.StoresFactory = openStores
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.MailerFactory == nil {
		deps.MailerFactory = newMailer
	}
	if deps.ImageStoreFactory == nil {
		deps.ImageStoreFactory = newImageStore
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	return deps
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = withServeDefaults(deps)

	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").With("operation", "set up logging").Wrap(err)
	}

	logger.Info("starting cms",
		"addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"token_backend", cfg.Tokens.Backend,
		"mail_driver", cfg.Mail.Driver)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(deps.MigratorFactory, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	stores, err := deps.StoresFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("STORES_OPEN_FAILED").With("operation", "open stores").Wrap(err)
	}
	defer stores.Close()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, observability.AllReady(stores.Pings...))
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	svc, err := buildServices(ctx, cfg, stores, deps, metrics, logger)
	if err != nil {
		return err
	}

	handler, err := web.NewHandler(svc, web.Options{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logger,
		Observer:    metrics,
	})
	if err != nil {
		return oops.Code("API_SETUP_FAILED").With("operation", "build handler").Wrap(err)
	}

	apiServer := web.NewServer(cfg.HTTP.Addr, handler, logger)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.Code("API_START_FAILED").With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	metricsAddr := ""
	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := apiServer.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return oops.Code("OBSERVABILITY_START_FAILED").With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metricsAddr = obsServer.Addr()
		logger.Info("observability server started", "addr", metricsAddr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("CMS started")
	logger.Info("cms ready", "addr", apiServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr(), metricsAddr)
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		errutil.LogError(logger, "error stopping api server", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogError(logger, "error stopping observability server", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// autoMigrate applies pending migrations before the stores are opened.
func autoMigrate(factory func(string) (AutoMigrator, error), databaseURL string, logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	logger.Info("applying database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

// buildServices wires the flow services to their collaborators.
func buildServices(
	ctx context.Context,
	cfg *config.Config,
	stores *Stores,
	deps *ServeDeps,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (web.Services, error) {
	codec, err := auth.NewSessionCodec([]byte(cfg.JWT.Secret),
		auth.WithSessionTTL(cfg.JWT.TTL.Std()),
		auth.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		return web.Services{}, oops.Code("AUTH_SETUP_FAILED").With("component", "session codec").Wrap(err)
	}
	otps, err := auth.NewOTPStore(stores.Tokens, auth.WithOTPTTL(cfg.OTP.TTL.Std()))
	if err != nil {
		return web.Services{}, oops.Code("AUTH_SETUP_FAILED").With("component", "otp store").Wrap(err)
	}
	resets, err := auth.NewResetStore(stores.Resets, auth.WithResetTTL(cfg.Reset.TTL.Std()))
	if err != nil {
		return web.Services{}, oops.Code("AUTH_SETUP_FAILED").With("component", "reset store").Wrap(err)
	}

	mailer, err := deps.MailerFactory(cfg.Mail, logger)
	if err != nil {
		return web.Services{}, oops.Code("MAIL_SETUP_FAILED").With("driver", cfg.Mail.Driver).Wrap(err)
	}
	dispatcher, err := notify.NewDispatcher(mailer, notify.DispatcherConfig{
		ResetURLBase: cfg.Reset.URLBase,
		OTPTTL:       cfg.OTP.TTL.Std(),
		ResetTTL:     cfg.Reset.TTL.Std(),
		Recorder:     metrics,
		Logger:       logger,
	})
	if err != nil {
		return web.Services{}, oops.Code("MAIL_SETUP_FAILED").With("component", "dispatcher").Wrap(err)
	}

	var images auth.ImageStore
	if cfg.Storage.S3.Bucket != "" {
		images, err = deps.ImageStoreFactory(ctx, cfg.Storage.S3)
		if err != nil {
			return web.Services{}, oops.Code("MEDIA_SETUP_FAILED").With("bucket", cfg.Storage.S3.Bucket).Wrap(err)
		}
	} else {
		logger.Info("profile image uploads disabled", "reason", "storage.s3.bucket not set")
	}

	c := auth.Collaborators{
		Accounts: stores.Accounts,
		OTPs:     otps,
		Resets:   resets,
		Hasher:   auth.NewArgon2idHasher(),
		Sessions: codec,
		Notifier: dispatcher,
		Images:   images,
		Tx:       stores.Tx,
	}
	opts := []auth.Option{auth.WithLogger(logger), auth.WithRecorder(metrics)}

	svc := web.Services{Codec: codec}
	if svc.Registration, err = auth.NewRegistrationService(c, opts...); err != nil {
		return web.Services{}, err
	}
	if svc.Sessions, err = auth.NewSessionService(c, opts...); err != nil {
		return web.Services{}, err
	}
	policy := auth.RecoveryPolicy{RevealUnknownAccounts: cfg.Recovery.RevealUnknownAccounts}
	if svc.Recovery, err = auth.NewRecoveryService(c, policy, opts...); err != nil {
		return web.Services{}, err
	}
	if svc.Profile, err = auth.NewProfileService(c, opts...); err != nil {
		return web.Services{}, err
	}
	if svc.Admin, err = auth.NewAdminService(c, opts...); err != nil {
		return web.Services{}, err
	}
	return svc, nil
}

// openStores connects to PostgreSQL and, for the redis token backend, to
// Redis. Accounts always live in PostgreSQL.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	s := &Stores{
		Accounts: authpg.NewAccountRepository(pool),
		Tokens:   authpg.NewVerificationTokenRepository(pool),
		Resets:   authpg.NewPasswordResetRepository(pool),
		Tx:       store.NewTxManager(pool),
		Pings:    []observability.PingFunc{pool.Ping},
		Close:    pool.Close,
	}

	if cfg.Tokens.Backend != config.BackendRedis {
		return s, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		pool.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
	}
	logger.Info("connected to redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)

	s.Tokens = authredis.NewVerificationTokenRepository(client, cfg.Redis.Prefix)
	s.Resets = authredis.NewPasswordResetRepository(client, cfg.Redis.Prefix)
	s.Pings = append(s.Pings, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	s.Close = func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
		pool.Close()
	}
	return s, nil
}

// newMailer returns the log mailer, or an SMTP mailer wrapped in retries.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (notify.Mailer, error) {
	if cfg.Driver == config.MailLog {
		return notify.NewLogMailer(logger), nil
	}
	smtp, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		TLS:      cfg.TLS,
		Timeout:  mailTimeout,
	})
	if err != nil {
		return nil, err
	}
	return notify.NewRetryingMailer(smtp, cfg.Retries, mailRetryBase, logger), nil
}

func newImageStore(ctx context.Context, cfg config.S3Config) (auth.ImageStore, error) {
	s, err := media.NewS3Store(ctx, media.S3Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error is received, the channel is closed, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
