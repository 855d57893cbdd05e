// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maachang/origin-sub000/internal/database"
)

func RunQueryCommand() *cobra.Command {
	var (
		configDir string
		pool      string
		limit     int
		offset    int
		format    string
		params    []string
	)

	cmd := &cobra.Command{
		Use:   "query [flags] SQL",
		Short: "Run a SELECT against a pool and print the rows",
		Example: `  origin query "SELECT id, name FROM users WHERE active = ?" --arg 1
  origin query --pool reports --limit 20 --offset 40 "SELECT * FROM sales ORDER BY id"`,
		Args: cobra.MinimumNArgs(1),
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
			registry, err := openRegistry(cfg, false)
			if err != nil {
				return err
			}
			defer registry.Destroy()

			rs, err := runQuery(cmd.Context(), registry, pool, strings.Join(args, " "), limit, offset, toArgs(params))
			if err != nil {
				return err
			}
			if err := writeResult(out, resolved, rs); err != nil {
				return err
			}
			if resolved == formatTable {
				fmt.Fprintf(out, "(%d rows)\n", len(rs.Rows))
			}
			return nil
		},
	}
	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().StringVarP(&pool, "pool", "p", "", "pool name (default: the configured default pool)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size; enables pagination")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip; enables pagination")
	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "output format: auto, table, tsv, json, yaml")
	cmd.Flags().StringArrayVar(&params, "arg", nil, "placeholder value, repeatable")
	return cmd
}

func runQuery(ctx context.Context, registry *database.Registry, pool, query string, limit, offset int, args []any) (resultSet, error) {
	s, err := registry.GetConnection(ctx, pool)
	if err != nil {
		return resultSet{}, err
	}
	defer s.Close()

	paginated := limit > 0 || offset > 0
	rd, err := s.Reader(ctx, query, paginated)
	if err != nil {
		return resultSet{}, err
	}
	if paginated {
		rd.SetPosition(limit, offset)
	}

	cur, err := rd.Query(ctx, args...)
	if err != nil {
		return resultSet{}, err
	}
	rows, err := cur.All()
	if err != nil {
		return resultSet{}, err
	}

	rs := resultSet{Columns: cur.Meta().Names(), Rows: make([][]any, 0, len(rows))}
	for _, row := range rows {
		values := make([]any, row.Len())
		for i := range values {
			values[i] = row.At(i)
		}
		rs.Rows = append(rs.Rows, values)
	}
	return rs, nil
}

func toArgs(params []string) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}
	return args
}

func RunExecCommand() *cobra.Command {
	var (
		configDir string
		pool      string
		file      string
		keepGoing bool
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] [SCRIPT]",
		Short: "Run a script, one statement per line, and commit",
		Long: `Run a script against a pool. Each non-empty line is one statement.
The work is committed when every line succeeds and rolled back otherwise,
unless --keep-going is set. Use --file - to read the script from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			registry, err := openRegistry(cfg, false)
			if err != nil {
				return err
			}
			defer registry.Destroy()

			return runScript(cmd.Context(), cmd.OutOrStdout(), registry, pool, script, keepGoing)
		},
	}
	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().StringVarP(&pool, "pool", "p", "", "pool name (default: the configured default pool)")
	cmd.Flags().StringVar(&file, "file", "", "read the script from a file, - for stdin")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "commit the lines that succeeded even when others fail")
	return cmd
}

func readScript(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read script: %w", err)
		}
		return string(data), nil
	case len(args) == 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("no script given: pass it as an argument or with --file")
	}
}

func runScript(ctx context.Context, out io.Writer, registry *database.Registry, pool, script string, keepGoing bool) error {
	s, err := registry.GetConnection(ctx, pool)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Statement()
	if err != nil {
		return err
	}
	lineErrs, err := st.Each(ctx, script)
	if err != nil {
		return err
	}

	failed := 0
	for i, lineErr := range lineErrs {
		if lineErr != nil {
			failed++
			fmt.Fprintf(out, "statement %d: %v\n", i+1, lineErr)
		}
	}

	if failed > 0 && !keepGoing {
		if err := s.Rollback(ctx); err != nil {
			return err
		}
		return fmt.Errorf("%d of %d statements failed, rolled back", failed, len(lineErrs))
	}
	if err := s.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d statements executed, %d failed\n", len(lineErrs)-failed, failed)
	return nil
}
