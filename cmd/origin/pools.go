// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maachang/origin-sub000/internal/config"
	"github.com/maachang/origin-sub000/internal/database"
	"github.com/maachang/origin-sub000/pkg/redact"
)

type poolRow struct {
	Name    string
	Use     bool
	Default bool
	Kind    string
	URL     string
	MaxPool int
	Timeout string
}

func poolRows(db config.DBConfig) []poolRow {
	rows := make([]poolRow, 0, len(db.Pools))
	for _, name := range db.PoolNames() {
		pc := db.Pools[name]
		kind := pc.Kind
		if kind == "" {
			kind = db.Kind
		}
		maxPool := pc.MaxPool
		if maxPool <= 0 {
			maxPool = db.MaxPool
		}
		timeout := pc.Timeout
		if timeout <= 0 {
			timeout = db.Timeout
		}
		rows = append(rows, poolRow{
			Name:    name,
			Use:     pc.Use,
			Default: name == db.Register,
			Kind:    kind,
			URL:     redact.DSN(pc.URL),
			MaxPool: database.ClampMaxSize(maxPool),
			Timeout: database.ClampTimeout(time.Duration(timeout) * time.Millisecond).String(),
		})
	}
	return rows
}

func RunPoolsCommand() *cobra.Command {
	var (
		configDir string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List the configured pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			resolved, err := resolveFormat(format, out)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			rows := poolRows(cfg.Config.DB)

			if resolved == formatJSON || resolved == formatYAML {
				rs := resultSet{Columns: []string{"name", "use", "default", "kind", "url", "maxPool", "timeout"}}
				for _, r := range rows {
					rs.Rows = append(rs.Rows, []any{r.Name, r.Use, r.Default, r.Kind, r.URL, r.MaxPool, r.Timeout})
				}
				return writeResult(out, resolved, rs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tUSE\tKIND\tMAX\tTIMEOUT\tURL")
			for _, r := range rows {
				name := r.Name
				if r.Default {
					name += " *"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", name, strconv.FormatBool(r.Use), r.Kind, r.MaxPool, r.Timeout, r.URL)
			}
			return tw.Flush()
		},
	}
	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "output format: auto, table, json, yaml")
	return cmd
}
