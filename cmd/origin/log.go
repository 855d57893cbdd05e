// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maachang/origin-sub000/internal/config"
)

func RunLogCommand() *cobra.Command {
	var (
		configDir  string
		level      string
		path       string
		maxSize    int
		maxBackups int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show or change the log settings in config.toml",
		Long: `Without flags, print the effective log settings. With flags, apply
and persist them. Settings pinned by ORIGIN__ environment variables cannot
be changed here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}

			var update config.LogSettingsUpdate
			flags := cmd.Flags()
			if flags.Changed("level") {
				update.Level = &level
			}
			if flags.Changed("path") {
				update.Path = &path
			}
			if flags.Changed("max-size") {
				update.MaxSize = &maxSize
			}
			if flags.Changed("max-backups") {
				update.MaxBackups = &maxBackups
			}

			settings := cfg.GetLogSettings()
			if update != (config.LogSettingsUpdate{}) {
				if settings, err = cfg.UpdateLogSettings(update); err != nil {
					return err
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().StringVar(&level, "level", "", "TRACE, DEBUG, INFO, WARN or ERROR")
	cmd.Flags().StringVar(&path, "path", "", "log file path, empty to log to stderr only")
	cmd.Flags().IntVar(&maxSize, "max-size", 50, "rotate after this many megabytes")
	cmd.Flags().IntVar(&maxBackups, "max-backups", 3, "rotated files to keep")
	return cmd
}
