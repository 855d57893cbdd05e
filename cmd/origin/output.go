// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const (
	formatAuto  = "auto"
	formatTable = "table"
	formatTSV   = "tsv"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// resultSet is a query result detached from its cursor.
type resultSet struct {
	Columns []string
	Rows    [][]any
}

// resolveFormat picks table output for terminals and TSV for pipes.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", formatAuto:
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return formatTable, nil
		}
		return formatTSV, nil
	case formatTable:
		return formatTable, nil
	case formatTSV:
		return formatTSV, nil
	case formatJSON:
		return formatJSON, nil
	case formatYAML:
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want auto, table, tsv, json or yaml)", format)
	}
}

func writeResult(w io.Writer, format string, rs resultSet) error {
	switch format {
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(rs.Columns, "\t"))
		fmt.Fprintln(tw, strings.Join(underline(rs.Columns), "\t"))
		for _, row := range rs.Rows {
			fmt.Fprintln(tw, strings.Join(cells(row), "\t"))
		}
		return tw.Flush()
	case formatTSV:
		if _, err := fmt.Fprintln(w, strings.Join(rs.Columns, "\t")); err != nil {
			return err
		}
		for _, row := range rs.Rows {
			if _, err := fmt.Fprintln(w, strings.Join(cells(row), "\t")); err != nil {
				return err
			}
		}
		return nil
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records(rs))
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records(rs)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func underline(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = strings.Repeat("-", max(len(c), 1))
	}
	return out
}

func cells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = formatCell(v)
	}
	return out
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return sanitizeCell(string(x))
	case string:
		return sanitizeCell(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// sanitizeCell keeps tabs and newlines from breaking row alignment.
func sanitizeCell(s string) string {
	return strings.NewReplacer("\t", `\t`, "\n", `\n`, "\r", `\r`).Replace(s)
}

func records(rs resultSet) []map[string]any {
	out := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		rec := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			v := row[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[col] = v
		}
		out = append(out, rec)
	}
	return out
}
