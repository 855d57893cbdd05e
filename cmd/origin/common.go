// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maachang/origin-sub000/internal/buildinfo"
	"github.com/maachang/origin-sub000/internal/config"
	"github.com/maachang/origin-sub000/internal/database"
	"github.com/maachang/origin-sub000/internal/sequence"
)

func addConfigDirFlag(cmd *cobra.Command, configDir *string) {
	cmd.Flags().StringVar(configDir, "config-dir", "", "config directory or config.toml path (default "+config.GetDefaultConfigDir()+")")
}

// loadConfig reads config.toml and applies its log settings.
func loadConfig(configDir string) (*config.AppConfig, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyLogConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSequence(cfg *config.AppConfig) *sequence.Generator {
	machineID := sequence.ResolveMachineID(cfg.Config.MachineID, config.AppName, cfg.ConfigDir())
	log.Debug().Uint32("machineId", machineID).Msg("sequence generator ready")
	return sequence.New(machineID, nil)
}

// openRegistry builds the pool registry. One-shot commands run without the
// eviction monitor.
func openRegistry(cfg *config.AppConfig, monitor bool) (*database.Registry, error) {
	return config.InitRegistry(cfg.Config.DB, newSequence(cfg), database.Options{
		DisableMonitor: !monitor,
	})
}
