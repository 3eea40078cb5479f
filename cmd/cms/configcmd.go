// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hemasrilatha/cms/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "print",
			Short: "Print the effective configuration with secrets redacted",
			Long: `Print the configuration that serve would use, after defaults, the
config file, the dotenv file and CMS_* variables are layered. Secrets are
replaced with ` + config.Redacted + `.`,
			Args: cobra.NoArgs,
			RunE: runConfigPrint,
		},
		&cobra.Command{
			Use:   "validate [FILE]",
			Short: "Validate a config file",
			Long: `Check FILE (or the --config file) against the config JSON Schema, then
check the effective configuration the way serve does.`,
			Args: cobra.MaximumNArgs(1),
			RunE: runConfigValidate,
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the config JSON Schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := config.GenerateSchema()
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			},
		},
	)

	return cmd
}

func runConfigPrint(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	cmd.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath()
	if len(args) == 1 {
		path = args[0]
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := config.ValidateFile(data); err != nil {
			return oops.With("path", path).Wrap(err)
		}
		configFile = path
	}

	if _, err := loadValidConfig(cmd); err != nil {
		return err
	}

	if path == "" {
		cmd.Println("configuration is valid")
	} else {
		cmd.Printf("%s is valid\n", path)
	}
	return nil
}
