// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateLogSettingsInTOML(t *testing.T) {
	input := `# header
logLevel = "INFO"
#logPath = "old.log"
metricsEnabled = false

[db]
kind = "sqlite"
logLevel = "untouched"
`
	out := updateLogSettingsInTOML(input, logValues("DEBUG", "log/origin.log", 10, 2))

	assert.Equal(t, `# header
logLevel = "DEBUG"
logPath = "log/origin.log"
metricsEnabled = false

# Log settings
logMaxSize = 10
logMaxBackups = 2

[db]
kind = "sqlite"
logLevel = "untouched"
`, out)
}

func TestUpdateLogSettingsInTOML_NoTables(t *testing.T) {
	out := updateLogSettingsInTOML("logLevel = \"INFO\"", logValues("WARN", "", 50, 3))

	assert.Equal(t, "logLevel = \"WARN\"\n# Log settings\nlogMaxSize = 50\nlogMaxBackups = 3\n", out)
}

func TestCanonicalizeLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", canonicalizeLogLevel(" debug "))
	assert.Equal(t, "INFO", canonicalizeLogLevel("verbose"))
	assert.Equal(t, "INFO", canonicalizeLogLevel(""))
}

func TestUpdateLogSettings_PersistsAndReloads(t *testing.T) {
	restoreLogger(t)
	dir := writeConfig(t, "logLevel = \"INFO\"\n\n[db]\nkind = \"sqlite\"\n")
	c, err := New(dir, "1.0.0-dev")
	require.NoError(t, err)

	level := "debug"
	maxSize := 5
	resp, err := c.UpdateLogSettings(LogSettingsUpdate{Level: &level, MaxSize: &maxSize})
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", resp.Level)
	assert.Equal(t, 5, resp.MaxSize)
	assert.Equal(t, filepath.Join(dir, "config.toml"), resp.ConfigPath)

	reloaded, err := New(dir, "1.0.0-dev")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", reloaded.Config.LogLevel)
	assert.Equal(t, 5, reloaded.Config.LogMaxSize)
	assert.Equal(t, "sqlite", reloaded.Config.DB.Kind)

	content, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[db]")
}

func TestUpdateLogSettings_RejectsLockedFields(t *testing.T) {
	restoreLogger(t)
	dir := writeConfig(t, "logLevel = \"INFO\"\n")
	t.Setenv("ORIGIN__LOG_LEVEL", "WARN")
	t.Setenv("ORIGIN__LOG_PATH", "")

	c, err := New(dir, "1.0.0-dev")
	require.NoError(t, err)

	locked := c.GetLockedLogSettings()
	assert.Equal(t, lockedByEnv, locked["level"])
	assert.Equal(t, lockedByEnvEmpty, locked["path"])

	level := "DEBUG"
	_, err = c.UpdateLogSettings(LogSettingsUpdate{Level: &level})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by environment")
	assert.Equal(t, "WARN", c.GetLogSettings().Level)

	content, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "logLevel = \"INFO\"\n", string(content))
}
