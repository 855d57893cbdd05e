// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/maachang/origin-sub000/internal/config"
	"github.com/maachang/origin-sub000/internal/sequence"
)

const usersScript = `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)
INSERT INTO users (id, name) VALUES (1, 'ann')
INSERT INTO users (id, name) VALUES (2, 'bob')
INSERT INTO users (id, name) VALUES (3, 'cy')`

func prepareConfigDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "config")
	created, err := config.WriteDefaultConfig(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	require.True(t, created)
	return dir
}

func seededConfigDir(t *testing.T) string {
	t.Helper()
	dir := prepareConfigDir(t)
	output := mustRunCommand(t, RunExecCommand(), "--config-dir", dir, usersScript)
	require.Contains(t, output, "4 statements executed, 0 failed")
	return dir
}

func mustRunCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	output, err := runCommand(cmd, args...)
	require.NoError(t, err, output)
	return output
}

func runCommand(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestQueryCommand_TSV(t *testing.T) {
	dir := seededConfigDir(t)

	output := mustRunCommand(t, RunQueryCommand(), "--config-dir", dir, "--format", "tsv",
		"SELECT id, name FROM users ORDER BY id")

	assert.Equal(t, "id\tname\n1\tann\n2\tbob\n3\tcy\n", output)
}

func TestQueryCommand_PaginatedWithArgs(t *testing.T) {
	dir := seededConfigDir(t)

	output := mustRunCommand(t, RunQueryCommand(), "--config-dir", dir, "-f", "tsv",
		"--limit", "1", "--offset", "1", "--arg", "0",
		"SELECT id, name FROM users WHERE id > ? ORDER BY id")

	assert.Equal(t, "id\tname\n2\tbob\n", output)
}

func TestQueryCommand_JSONAndYAML(t *testing.T) {
	dir := seededConfigDir(t)

	output := mustRunCommand(t, RunQueryCommand(), "--config-dir", dir, "--format", "json",
		"SELECT name FROM users WHERE id = 2")
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "bob", records[0]["name"])

	output = mustRunCommand(t, RunQueryCommand(), "--config-dir", dir, "--format", "yaml",
		"SELECT name FROM users ORDER BY id")
	var docs []map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(output), &docs))
	assert.Equal(t, []map[string]string{{"name": "ann"}, {"name": "bob"}, {"name": "cy"}}, docs)
}

func TestQueryCommand_TableFormat(t *testing.T) {
	dir := seededConfigDir(t)

	output := mustRunCommand(t, RunQueryCommand(), "--config-dir", dir, "--format", "table",
		"SELECT id, name FROM users ORDER BY id")

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "id  name", lines[0])
	assert.Equal(t, "--  ----", lines[1])
	assert.Equal(t, "(3 rows)", lines[5])
}

func TestQueryCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := runCommand(RunQueryCommand(), "--config-dir", prepareConfigDir(t), "--format", "xml", "SELECT 1")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestExecCommand_RollsBackOnFailure(t *testing.T) {
	dir := seededConfigDir(t)

	output, err := runCommand(RunExecCommand(), "--config-dir", dir,
		"INSERT INTO users (id, name) VALUES (4, 'dee')\nINSERT INTO missing (x) VALUES (1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 statements failed")
	assert.Contains(t, output, "statement 2:")

	output = mustRunCommand(t, RunQueryCommand(), "--config-dir", dir, "-f", "tsv", "SELECT COUNT(*) AS n FROM users")
	assert.Equal(t, "n\n3\n", output)
}

func TestExecCommand_KeepGoingFromFile(t *testing.T) {
	dir := seededConfigDir(t)
	script := filepath.Join(t.TempDir(), "script.sql")
	require.NoError(t, os.WriteFile(script, []byte("INSERT INTO users (id, name) VALUES (4, 'dee')\n\nINSERT INTO missing (x) VALUES (1)\n"), 0o644))

	output := mustRunCommand(t, RunExecCommand(), "--config-dir", dir, "--file", script, "--keep-going")
	assert.Contains(t, output, "1 statements executed, 1 failed")

	output = mustRunCommand(t, RunQueryCommand(), "--config-dir", dir, "-f", "tsv", "SELECT COUNT(*) AS n FROM users")
	assert.Equal(t, "n\n4\n", output)
}

func TestExecCommand_ScriptFromStdin(t *testing.T) {
	dir := prepareConfigDir(t)

	cmd := RunExecCommand()
	cmd.SetIn(strings.NewReader("CREATE TABLE t (x INTEGER)\nINSERT INTO t (x) VALUES (7)\n"))
	output := mustRunCommand(t, cmd, "--config-dir", dir, "--file", "-")
	assert.Contains(t, output, "2 statements executed, 0 failed")

	_, err := runCommand(RunExecCommand(), "--config-dir", dir)
	assert.ErrorContains(t, err, "no script given")
}

func TestPoolsCommand(t *testing.T) {
	dir := prepareConfigDir(t)

	output := mustRunCommand(t, RunPoolsCommand(), "--config-dir", dir, "--format", "table")
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "main *")
	assert.Contains(t, output, "sqlite")
	assert.Contains(t, output, "1m0s")

	output = mustRunCommand(t, RunPoolsCommand(), "--config-dir", dir, "--format", "json")
	var pools []map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &pools))
	require.Len(t, pools, 1)
	assert.Equal(t, "main", pools[0]["name"])
	assert.Equal(t, true, pools[0]["default"])
	assert.Equal(t, float64(10), pools[0]["maxPool"])
}

func TestIDCommand(t *testing.T) {
	dir := prepareConfigDir(t)

	output := mustRunCommand(t, RunIDCommand(), "--config-dir", dir, "-n", "3")
	lines := strings.Fields(output)
	require.Len(t, lines, 3)

	var prev sequence.ID
	for _, line := range lines {
		id, err := sequence.Parse(line)
		require.NoError(t, err)
		assert.Greater(t, id.String(), prev.String())
		prev = id
	}

	output = mustRunCommand(t, RunIDCommand(), "--parse", "00000000-0000-0001-0000-000200000003")
	assert.Contains(t, output, "sequence: 2")
	assert.Contains(t, output, "machine:  3")

	_, err := runCommand(RunIDCommand(), "--config-dir", dir, "-n", "0")
	assert.Error(t, err)
}

func TestLogCommand(t *testing.T) {
	dir := prepareConfigDir(t)

	output := mustRunCommand(t, RunLogCommand(), "--config-dir", dir)
	assert.Contains(t, output, "level: INFO")

	output = mustRunCommand(t, RunLogCommand(), "--config-dir", dir, "--level", "warn", "--max-backups", "1")
	assert.Contains(t, output, "level: WARN")
	assert.Contains(t, output, "maxBackups: 1")

	content, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `logLevel = "WARN"`)
	assert.Contains(t, string(content), "logMaxBackups = 1")
	assert.Contains(t, string(content), "[db.pools.main]")
}

func TestVersionCommand(t *testing.T) {
	output := mustRunCommand(t, RunVersionCommand(), "--json")
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Contains(t, info, "version")

	output = mustRunCommand(t, RunVersionCommand())
	assert.Contains(t, output, "Version:")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCommand().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "query", "exec", "pools", "id", "log", "generate-config", "version"} {
		assert.True(t, names[want], want)
	}
}
