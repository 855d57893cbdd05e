// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maachang/origin-sub000/internal/sequence"
)

func RunIDCommand() *cobra.Command {
	var (
		configDir string
		count     int
		parse     string
	)

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Issue sequence ids, or decode one with --parse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if parse != "" {
				id, err := sequence.Parse(parse)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "time:     %s\nsequence: %d\nmachine:  %d\n",
					id.Time().UTC().Format(time.RFC3339Nano), id.Sequence(), id.MachineID())
				return nil
			}

			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			gen := newSequence(cfg)
			for range count {
				fmt.Fprintln(out, gen.Next())
			}
			return nil
		},
	}
	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ids to issue")
	cmd.Flags().StringVar(&parse, "parse", "", "decode an id instead of issuing")
	return cmd
}
