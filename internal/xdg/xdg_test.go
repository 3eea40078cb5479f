// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	t.Run("env var", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		assert.Equal(t, "/custom/config/cms", ConfigDir())
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/testuser")
		assert.Equal(t, "/home/testuser/.config/cms", ConfigDir())
		assert.Equal(t, "/home/testuser/.config/cms/config.yaml", ConfigFile())
	})
}

func TestExistingConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	assert.Empty(t, ExistingConfigFile())

	require.NoError(t, os.MkdirAll(filepath.Join(base, "cms", ConfigFileName), 0o700))
	assert.Empty(t, ExistingConfigFile(), "directories are ignored")

	require.NoError(t, os.Remove(filepath.Join(base, "cms", ConfigFileName)))
	path := filepath.Join(base, "cms", ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0.0\"\n"), 0o600))
	assert.Equal(t, path, ExistingConfigFile())
}
