// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hemasrilatha/cms/internal/config"
	"github.com/hemasrilatha/cms/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

const defaultEnvFile = ".env"

// NewRootCmd creates the root command for the CMS CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cms",
		Short: "CMS - account service for the content management system",
		Long: `CMS serves the account lifecycle of the content management system:
registration with emailed verification codes, sign-in with signed session
tokens, password recovery, email change, profile self-service and
administration.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/cms/config.yaml if present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before CMS_* variables")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// configPath is the --config value or, when unset, the XDG config file if
// one exists.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ExistingConfigFile()
}

// loadConfig layers defaults, the config file, the environment and the
// changed flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	//nolint:wrapcheck // config errors already carry their codes
	return config.Load(config.Options{
		File:   configPath(),
		DotEnv: envFile,
		Flags:  cmd.Flags(),
	})
}

// loadValidConfig is loadConfig followed by Validate.
func loadValidConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.With("config_file", configPath()).Wrap(err)
	}
	return cfg, nil
}
