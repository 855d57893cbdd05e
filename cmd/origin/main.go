// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maachang/origin-sub000/internal/buildinfo"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "origin",
		Short: "Pooled relational database access",
		Long: `origin keeps named pools of database connections and runs
queries and scripts through them.

Pools are defined in config.toml under [db.pools.<name>].`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		RunServeCommand(),
		RunQueryCommand(),
		RunExecCommand(),
		RunPoolsCommand(),
		RunIDCommand(),
		RunLogCommand(),
		RunGenerateConfigCommand(),
		RunVersionCommand(),
	)
	return rootCmd
}

func RunVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !asJSON {
				fmt.Fprint(cmd.OutOrStdout(), buildinfo.String())
				return nil
			}
			data, err := buildinfo.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
