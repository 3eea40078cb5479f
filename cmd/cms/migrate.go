// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hemasrilatha/cms/internal/store"
)

// MigrateDeps contains injectable dependencies for the migrate commands.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithDeps(nil)
}

func newMigrateCmdWithDeps(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the embedded PostgreSQL schema migrations.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					return m.Down()
				}
				cmd.Println("Rolling back one migration...")
				return m.Steps(-1)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration, dropping all account data")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, deps, func(m Migrator) error {
					cmd.Println("Running migrations...")
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the current version and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, deps, func(m Migrator) error {
					status, err := m.Status()
					if err != nil {
						return err
					}
					printStatus(cmd, status)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, deps, func(m Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					if dirty {
						cmd.Printf("%d (dirty)\n", v)
						return nil
					}
					cmd.Println(v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Long: `Record VERSION as the current schema version and clear the dirty flag.
Use this only after repairing a failed migration by hand.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
				}
				return withMigrator(cmd, deps, func(m Migrator) error {
					if err := m.Force(v); err != nil {
						return err
					}
					cmd.Printf("Forced schema version to %d\n", v)
					return nil
				})
			},
		},
	)

	return cmd
}

// withMigrator resolves the database URL, opens a migrator, runs fn and
// closes it. Only database.url has to be configured.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required (--database-url or CMS_DATABASE_URL)")
	}

	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: failed to close migrator:", closeErr)
		}
	}()

	return fn(m)
}

func printStatus(cmd *cobra.Command, status store.Status) {
	name := status.Name
	if name == "" {
		name = "none"
	}
	cmd.Printf("Current version: %d (%s)\n", status.Version, name)
	if status.Dirty {
		cmd.Println("State: dirty, repair and run 'cms migrate force VERSION'")
	}
	if len(status.Pending) == 0 {
		cmd.Println("Pending: none")
		return
	}
	cmd.Println("Pending:")
	for _, v := range status.Pending {
		pendingName, err := store.MigrationName(v)
		if err != nil || pendingName == "" {
			pendingName = "unknown"
		}
		cmd.Printf("  %d %s\n", v, pendingName)
	}
}
