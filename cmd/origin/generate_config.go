// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maachang/origin-sub000/internal/config"
)

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Write a default config.toml",
		Long:  "Write a commented default config.toml. An existing file is left untouched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configDir == "" {
				configDir = config.GetDefaultConfigDir()
			}
			configPath := configDir
			if !strings.EqualFold(filepath.Ext(configPath), ".toml") {
				configPath = filepath.Join(configDir, "config.toml")
			}

			created, err := config.WriteDefaultConfig(configPath)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration file already exists at %s. Skipping generation.\n", configPath)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at %s\n", configPath)
			return nil
		},
	}
	addConfigDirFlag(cmd, &configDir)
	return cmd
}
