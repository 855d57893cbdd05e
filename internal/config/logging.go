// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/maachang/origin-sub000/internal/logstream"
)

// LogManager owns the process logger output and lets it be reconfigured
// while other goroutines log.
type LogManager struct {
	recent      *logstream.Ring
	switchable  *logstream.SwitchableWriter
	version     string
	mu          sync.Mutex
	initialized atomic.Bool
}

func NewLogManager(version string) *LogManager {
	recent := logstream.NewRing(logstream.DefaultRingSize)
	return &LogManager{
		recent:     recent,
		switchable: logstream.NewSwitchableWriter(baseLogWriter(version), recent),
		version:    version,
	}
}

// Initialize routes the global logger through the switchable writer. Only
// the first call has an effect.
func (lm *LogManager) Initialize() {
	if lm.initialized.Swap(true) {
		return
	}
	// The logger itself stays at trace; filtering happens through the
	// global level so it can change without touching log.Logger.
	log.Logger = log.Logger.Output(lm.switchable).Level(zerolog.TraceLevel)
}

// Recent returns the ring holding the latest log lines.
func (lm *LogManager) Recent() *logstream.Ring {
	return lm.recent
}

// Apply sets the level and output. File output rotates through lumberjack.
func (lm *LogManager) Apply(level, logPath string, maxSize, maxBackups int) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	setLogLevel(level)

	newWriter, newCloser, err := lm.buildWriter(baseLogWriter(lm.version), logPath, maxSize, maxBackups)
	if err != nil {
		return err
	}

	if oldCloser := lm.switchable.Swap(newWriter, newCloser); oldCloser != nil {
		if closeErr := oldCloser.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("Failed to close old log rotator")
		}
	}
	return nil
}

func (lm *LogManager) buildWriter(baseWriter io.Writer, logPath string, maxSize, maxBackups int) (io.Writer, io.Closer, error) {
	if logPath == "" {
		return baseWriter, nil, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
	return io.MultiWriter(baseWriter, rotator), rotator, nil
}

// baseLogWriter writes human readable lines on a terminal and JSON
// otherwise. Development builds always get the console format.
func baseLogWriter(version string) io.Writer {
	if strings.HasSuffix(version, "-dev") || term.IsTerminal(int(os.Stderr.Fd())) {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return os.Stderr
}

func setLogLevel(level string) {
	switch canonicalizeLogLevel(level) {
	case "TRACE":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// LogSettingsResponse describes the effective log settings.
type LogSettingsResponse struct {
	Level      string            `json:"level" yaml:"level"`
	Path       string            `json:"path" yaml:"path"`
	MaxSize    int               `json:"maxSize" yaml:"maxSize"`
	MaxBackups int               `json:"maxBackups" yaml:"maxBackups"`
	ConfigPath string            `json:"configPath,omitempty" yaml:"configPath,omitempty"`
	Locked     map[string]string `json:"locked,omitempty" yaml:"locked,omitempty"`
}

// LogSettingsUpdate carries the fields to change; nil leaves a field alone.
type LogSettingsUpdate struct {
	Level      *string `json:"level,omitempty"`
	Path       *string `json:"path,omitempty"`
	MaxSize    *int    `json:"maxSize,omitempty"`
	MaxBackups *int    `json:"maxBackups,omitempty"`
}
