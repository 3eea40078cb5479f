// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hemasrilatha/cms/internal/store"
)

var _ = Describe("Postgres store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		migrator  *store.Migrator
		pool      *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("cms_test"),
			postgres.WithUsername("cms"),
			postgres.WithPassword("cms"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())

		pool, err = store.Connect(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if migrator != nil {
			_ = migrator.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("starts at version zero", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("walks the migrations up, down and up again", func() {
		Expect(migrator.Up()).To(Succeed())
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(3)))
		Expect(status.Pending).To(BeEmpty())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))

		Expect(migrator.Down()).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
	})

	It("commits and rolls back through TxManager", func() {
		txm := store.NewTxManager(pool)

		err := txm.WithinTx(ctx, func(ctx context.Context) error {
			_, err := store.Conn(ctx, pool).Exec(ctx,
				`INSERT INTO accounts (email, username, password_hash) VALUES ($1, $2, $3)`,
				"commit@x.com", "commit", "hash")
			return err
		})
		Expect(err).NotTo(HaveOccurred())

		rollback := errors.New("rollback")
		err = txm.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := store.Conn(ctx, pool).Exec(ctx,
				`INSERT INTO accounts (email, username, password_hash) VALUES ($1, $2, $3)`,
				"rollback@x.com", "rollback", "hash"); err != nil {
				return err
			}
			return rollback
		})
		Expect(err).To(MatchError(rollback))

		var count int
		Expect(pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM accounts WHERE email IN ('commit@x.com', 'rollback@x.com')`).
			Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})
})
