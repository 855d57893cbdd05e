// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/maachang/origin-sub000/internal/database"
	"github.com/maachang/origin-sub000/pkg/debounce"
)

const (
	AppName        = "origin"
	envPrefix      = "ORIGIN__"
	configFileName = "config.toml"

	// editors often write a file in several steps
	reloadDelay = 250 * time.Millisecond
)

// Config is the decoded config.toml.
type Config struct {
	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	MetricsEnabled        bool   `mapstructure:"metricsEnabled"`
	MetricsHost           string `mapstructure:"metricsHost"`
	MetricsPort           int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `mapstructure:"metricsBasicAuthUsers"`

	// MachineID fixes the sequence machine id; 0 derives one from the host.
	MachineID uint32 `mapstructure:"machineId"`

	DB DBConfig `mapstructure:"db"`
}

// DBConfig is the [db] table.
type DBConfig struct {
	Kind      string `mapstructure:"kind"`
	FetchSize int    `mapstructure:"fetchSize"`
	BatchSize int    `mapstructure:"batchSize"`
	MaxPool   int    `mapstructure:"maxPool"`
	// Timeout is the pool idle timeout in milliseconds.
	Timeout int `mapstructure:"timeout"`
	// Register names the default pool.
	Register string                `mapstructure:"register"`
	Pools    map[string]PoolConfig `mapstructure:"pools"`
}

// PoolConfig is one [db.pools.<name>] table. Zero MaxPool and Timeout fall
// back to the [db] values.
type PoolConfig struct {
	Use      bool   `mapstructure:"use"`
	Kind     string `mapstructure:"kind"`
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxPool  int    `mapstructure:"maxPool"`
	Timeout  int    `mapstructure:"timeout"`
}

// PoolNames returns the configured pool names in sorted order.
func (c DBConfig) PoolNames() []string {
	names := make([]string, 0, len(c.Pools))
	for name := range c.Pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AppConfig owns the loaded configuration and the logger it drives.
type AppConfig struct {
	Config     *Config
	viper      *viper.Viper
	configDir  string
	version    string
	logManager *LogManager
	reloader   *debounce.Debouncer
	configMu   sync.Mutex
}

// New loads config.toml from configDirOrPath, which may name either a
// directory or the file itself. An empty value uses GetDefaultConfigDir. A
// missing file is created from the default template.
func New(configDirOrPath, version string) (*AppConfig, error) {
	configPath := resolveConfigPath(configDirOrPath)

	if _, err := WriteDefaultConfig(configPath); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", configPath, err)
	}

	c := &AppConfig{
		Config:     cfg,
		viper:      v,
		configDir:  filepath.Dir(configPath),
		version:    version,
		logManager: NewLogManager(version),
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logPath", "")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("metricsEnabled", false)
	v.SetDefault("metricsHost", "127.0.0.1")
	v.SetDefault("metricsPort", 9074)
	v.SetDefault("metricsBasicAuthUsers", "")
	v.SetDefault("machineId", 0)
	v.SetDefault("db.kind", "sqlite")
	v.SetDefault("db.fetchSize", database.MaxFetchSize)
	v.SetDefault("db.batchSize", database.DefaultBatchSize)
	v.SetDefault("db.maxPool", database.DefaultMaxSize)
	v.SetDefault("db.timeout", int(database.DefaultTimeout.Milliseconds()))
	v.SetDefault("db.register", "")
}

// envKeys lists the settings that ORIGIN__ variables can override.
var envKeys = []string{
	"logLevel", "logPath", "logMaxSize", "logMaxBackups",
	"metricsEnabled", "metricsHost", "metricsPort", "metricsBasicAuthUsers",
	"machineId",
	"db.kind", "db.fetchSize", "db.batchSize", "db.maxPool", "db.timeout", "db.register",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range envKeys {
		if err := v.BindEnv(key, envVar(key)); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// envVar maps "db.fetchSize" to ORIGIN__DB_FETCH_SIZE.
func envVar(key string) string {
	parts := strings.Split(key, ".")
	for i, p := range parts {
		parts[i] = strings.ToUpper(database.ToSnake(p))
	}
	return envPrefix + strings.Join(parts, "_")
}

func resolveConfigPath(configDirOrPath string) string {
	if configDirOrPath == "" {
		configDirOrPath = GetDefaultConfigDir()
	}
	if strings.EqualFold(filepath.Ext(configDirOrPath), ".toml") {
		return configDirOrPath
	}
	return filepath.Join(configDirOrPath, configFileName)
}

// GetDefaultConfigDir returns $XDG_CONFIG_HOME/origin, /config inside the
// container image, or the OS config dir.
func GetDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if filepath.Clean(xdg) == "/config" {
			return "/config"
		}
		return filepath.Join(xdg, AppName)
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve user config dir, using working directory")
		return AppName
	}
	return filepath.Join(dir, AppName)
}

// ConfigDir is the directory holding config.toml.
func (c *AppConfig) ConfigDir() string { return c.configDir }

// ConfigFile is the path of the loaded config.toml.
func (c *AppConfig) ConfigFile() string { return c.viper.ConfigFileUsed() }

func (c *AppConfig) LogManager() *LogManager { return c.logManager }

// ResolveLogPath makes a relative log path relative to the config dir.
func (c *AppConfig) ResolveLogPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.configDir, path)
}

// ApplyLogConfig pushes the current log settings into the logger.
func (c *AppConfig) ApplyLogConfig() error {
	c.logManager.Initialize()
	return c.logManager.Apply(
		c.Config.LogLevel,
		c.ResolveLogPath(c.Config.LogPath),
		c.Config.LogMaxSize,
		c.Config.LogMaxBackups,
	)
}

// Watch reloads log settings when config.toml changes on disk. Pool
// definitions are read once at startup.
func (c *AppConfig) Watch() {
	c.reloader = debounce.New(reloadDelay, nil)
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c.reloader.Do(func() {
			if err := c.reloadLogSettings(); err != nil {
				log.Error().Err(err).Str("file", e.Name).Msg("failed to reload log settings")
				return
			}
			log.Info().Str("file", e.Name).Msg("reloaded log settings")
		})
	})
	c.viper.WatchConfig()
}

// Close stops the reload debouncer started by Watch.
func (c *AppConfig) Close() {
	if c.reloader != nil {
		c.reloader.Stop()
	}
}

func (c *AppConfig) reloadLogSettings() error {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	c.Config.LogLevel = c.viper.GetString("logLevel")
	c.Config.LogPath = c.viper.GetString("logPath")
	c.Config.LogMaxSize = c.viper.GetInt("logMaxSize")
	c.Config.LogMaxBackups = c.viper.GetInt("logMaxBackups")
	return c.ApplyLogConfig()
}

// WriteDefaultConfig writes the commented default config to path. It
// reports false without touching anything when the file already exists.
func WriteDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	dataDir := filepath.Dir(path)
	content := strings.ReplaceAll(defaultConfigTemplate, "{{dataDir}}", filepath.ToSlash(dataDir))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return true, nil
}

const defaultConfigTemplate = `# config.toml - Auto-generated on first run

# Log level: TRACE, DEBUG, INFO, WARN, ERROR
logLevel = "INFO"

# Log file path. Relative paths are resolved against the config directory.
# Leave unset to log to stderr only.
#logPath = "log/origin.log"

# Rotate the log file after this many megabytes, keeping this many backups.
logMaxSize = 50
logMaxBackups = 3

# Prometheus metrics endpoint served by "origin serve".
metricsEnabled = false
metricsHost = "127.0.0.1"
metricsPort = 9074
# Comma separated user:password pairs. Leave empty to disable auth.
#metricsBasicAuthUsers = "prom:secret"

# Fixes the machine id embedded in sequence ids. 0 derives one from the host.
#machineId = 0

[db]
# Default dialect: sqlite, postgresql, mysql
kind = "sqlite"
fetchSize = 100
batchSize = 100
# Pool size and idle timeout (milliseconds) for pools that do not set them.
maxPool = 10
timeout = 60000
# Pool used when no name is given.
register = "main"

[db.pools.main]
use = true
url = "{{dataDir}}/origin.db"

#[db.pools.reports]
#use = true
#kind = "postgresql"
#url = "postgres://localhost:5432/reports?sslmode=disable"
#user = "origin"
#password = "${REPORTS_PASSWORD}"
#maxPool = 4
#timeout = 30000
`
