// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/config"
	"github.com/hemasrilatha/cms/internal/notify"
	"github.com/hemasrilatha/cms/internal/observability"
	"github.com/hemasrilatha/cms/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoresFactory opens the repositories behind the flows.
	// Default: openStores (pgx pool, plus Redis for the redis token backend)
	StoresFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// MailerFactory creates the transport used by the notification dispatcher.
	// Default: newMailer
	MailerFactory func(cfg config.MailConfig, logger *slog.Logger) (notify.Mailer, error)

	// ImageStoreFactory creates the profile image store. It is only called
	// when storage.s3.bucket is set.
	// Default: media.NewS3Store
	ImageStoreFactory func(ctx context.Context, cfg config.S3Config) (auth.ImageStore, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// OnReady is called once both servers listen.
	OnReady func(apiAddr, metricsAddr string)
}

// Stores are the repositories and health checks of one deployment.
type Stores struct {
	Accounts auth.AccountRepository
	Tokens   auth.VerificationTokenRepository
	Resets   auth.PasswordResetRepository
	Tx       auth.Transactor
	Pings    []observability.PingFunc
	Close    func()
}

// AutoMigrator is the part of store.Migrator used by serve.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Migrator is the part of store.Migrator used by the migrate command.
type Migrator interface {
	AutoMigrator
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() (store.Status, error)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

var (
	_ Migrator            = (*store.Migrator)(nil)
	_ ObservabilityServer = (*observability.Server)(nil)
)
