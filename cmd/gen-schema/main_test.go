// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemasrilatha/cms/internal/config"
)

func TestGenerate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schemas", "config.schema.json")

	require.NoError(t, generate(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), config.SchemaID)
	assert.Contains(t, string(data), `"jwt"`)
}
