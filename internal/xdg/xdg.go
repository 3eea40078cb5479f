// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package xdg resolves the XDG Base Directory locations used by the CMS CLI.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const appName = "cms"

// ConfigFileName is the file looked up in ConfigDir when no --config is given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for cms.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// ExistingConfigFile returns ConfigFile when it exists as a regular file,
// otherwise "".
func ExistingConfigFile() string {
	path := ConfigFile()
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return path
		}
		return ""
	}
	if info.IsDir() {
		return ""
	}
	return path
}
