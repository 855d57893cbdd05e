// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	lockedByEnv      = "environment"
	lockedByEnvEmpty = "environment (empty)"
)

// persistMu serializes writers of config.toml.
var persistMu sync.Mutex

// logKeys maps the lower-cased TOML key to its canonical spelling.
var logKeys = map[string]string{
	"loglevel":      "logLevel",
	"logpath":       "logPath",
	"logmaxsize":    "logMaxSize",
	"logmaxbackups": "logMaxBackups",
}

// PersistLogSettings rewrites the top-level log keys of config.toml in
// place, keeping comments and every other line. The file is replaced
// atomically.
func (c *AppConfig) PersistLogSettings(level, path string, maxSize, maxBackups int) error {
	persistMu.Lock()
	defer persistMu.Unlock()

	configPath := c.viper.ConfigFileUsed()
	if configPath == "" {
		return errors.New("no config file path available")
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	updated := updateLogSettingsInTOML(string(content), logValues(level, path, maxSize, maxBackups))

	tmpFile, err := os.CreateTemp(filepath.Dir(configPath), ".config.toml.tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.WriteString(updated); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func logValues(level, path string, maxSize, maxBackups int) map[string]string {
	values := map[string]string{
		"logLevel":      fmt.Sprintf("logLevel = %q", level),
		"logMaxSize":    fmt.Sprintf("logMaxSize = %d", maxSize),
		"logMaxBackups": fmt.Sprintf("logMaxBackups = %d", maxBackups),
	}
	if path == "" {
		values["logPath"] = `#logPath = ""`
	} else {
		values["logPath"] = fmt.Sprintf("logPath = %q", path)
	}
	return values
}

// updateLogSettingsInTOML replaces log keys that appear before the first
// table header and appends the missing ones there. Keys inside [db] and
// friends are never touched.
func updateLogSettingsInTOML(content string, values map[string]string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines)+len(values)+1)
	seen := make(map[string]bool, len(values))
	inTable := false

	flushMissing := func() {
		var missing []string
		for _, key := range []string{"logLevel", "logPath", "logMaxSize", "logMaxBackups"} {
			if seen[key] || strings.HasPrefix(values[key], "#") {
				continue
			}
			missing = append(missing, values[key])
			seen[key] = true
		}
		if len(missing) > 0 {
			result = append(result, "# Log settings")
			result = append(result, missing...)
			result = append(result, "")
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inTable && strings.HasPrefix(trimmed, "[") {
			flushMissing()
			inTable = true
		}
		if inTable || trimmed == "" {
			result = append(result, line)
			continue
		}
		canonical, ok := logKeys[strings.ToLower(extractKey(trimmed))]
		if !ok {
			result = append(result, line)
			continue
		}
		seen[canonical] = true
		result = append(result, values[canonical])
	}
	if !inTable {
		flushMissing()
	}
	return strings.Join(result, "\n")
}

// extractKey returns the key of a "key = value" line, commented or not.
func extractKey(line string) string {
	line = strings.TrimSpace(strings.TrimPrefix(line, "#"))
	key, _, found := strings.Cut(line, "=")
	if !found {
		return ""
	}
	return strings.TrimSpace(key)
}

// GetLockedLogSettings reports the log settings pinned by ORIGIN__ variables.
func (c *AppConfig) GetLockedLogSettings() map[string]string {
	locked := make(map[string]string)
	for field, key := range map[string]string{
		"level":      "logLevel",
		"path":       "logPath",
		"maxSize":    "logMaxSize",
		"maxBackups": "logMaxBackups",
	} {
		if value, ok := os.LookupEnv(envVar(key)); ok {
			if strings.TrimSpace(value) == "" {
				locked[field] = lockedByEnvEmpty
			} else {
				locked[field] = lockedByEnv
			}
		}
	}
	return locked
}

// GetLogSettings returns the effective log settings. The path is absolute.
func (c *AppConfig) GetLogSettings() LogSettingsResponse {
	c.configMu.Lock()
	defer c.configMu.Unlock()
	return c.logSettingsLocked()
}

func (c *AppConfig) logSettingsLocked() LogSettingsResponse {
	return LogSettingsResponse{
		Level:      canonicalizeLogLevel(c.Config.LogLevel),
		Path:       c.ResolveLogPath(c.Config.LogPath),
		MaxSize:    c.Config.LogMaxSize,
		MaxBackups: c.Config.LogMaxBackups,
		ConfigPath: c.viper.ConfigFileUsed(),
		Locked:     c.GetLockedLogSettings(),
	}
}

// canonicalizeLogLevel upper-cases level; unknown levels become INFO.
func canonicalizeLogLevel(level string) string {
	normalized := strings.ToUpper(strings.TrimSpace(level))
	switch normalized {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
		return normalized
	default:
		return "INFO"
	}
}

func validateLockedFields(update LogSettingsUpdate, locked map[string]string) error {
	check := func(set bool, field string) error {
		if set && locked[field] != "" {
			return fmt.Errorf("cannot modify %s: locked by %s", field, locked[field])
		}
		return nil
	}
	return errors.Join(
		check(update.Level != nil, "level"),
		check(update.Path != nil, "path"),
		check(update.MaxSize != nil, "maxSize"),
		check(update.MaxBackups != nil, "maxBackups"),
	)
}

// UpdateLogSettings applies update to the running logger, then persists
// it. Nothing changes when a locked field is touched or the apply fails.
func (c *AppConfig) UpdateLogSettings(update LogSettingsUpdate) (LogSettingsResponse, error) {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	if err := validateLockedFields(update, c.GetLockedLogSettings()); err != nil {
		return LogSettingsResponse{}, err
	}

	old := *c.Config
	committed := false
	defer func() {
		if committed {
			return
		}
		c.Config.LogLevel = old.LogLevel
		c.Config.LogPath = old.LogPath
		c.Config.LogMaxSize = old.LogMaxSize
		c.Config.LogMaxBackups = old.LogMaxBackups
		c.syncViperLogKeys()
		c.ApplyLogConfig() //nolint:errcheck // best-effort rollback
	}()

	if update.Level != nil {
		c.Config.LogLevel = canonicalizeLogLevel(*update.Level)
	}
	if update.Path != nil {
		c.Config.LogPath = *update.Path
	}
	if update.MaxSize != nil {
		c.Config.LogMaxSize = *update.MaxSize
	}
	if update.MaxBackups != nil {
		c.Config.LogMaxBackups = *update.MaxBackups
	}
	c.syncViperLogKeys()

	if err := c.ApplyLogConfig(); err != nil {
		return LogSettingsResponse{}, fmt.Errorf("failed to apply log configuration: %w", err)
	}
	if err := c.PersistLogSettings(c.Config.LogLevel, c.Config.LogPath, c.Config.LogMaxSize, c.Config.LogMaxBackups); err != nil {
		return LogSettingsResponse{}, fmt.Errorf("failed to persist settings: %w", err)
	}

	committed = true
	return c.logSettingsLocked(), nil
}

func (c *AppConfig) syncViperLogKeys() {
	c.viper.Set("logLevel", c.Config.LogLevel)
	c.viper.Set("logPath", c.Config.LogPath)
	c.viper.Set("logMaxSize", c.Config.LogMaxSize)
	c.viper.Set("logMaxBackups", c.Config.LogMaxBackups)
}
