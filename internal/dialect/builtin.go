// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dialect

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/go-sql-driver/mysql"

	"github.com/maachang/origin-sub000/pkg/redact"
)

// SQLite is the embedded sqlite dialect served by modernc.org/sqlite.
var SQLite = &Descriptor{
	Name:           "sqlite",
	Driver:         "sqlite",
	URLPrefix:      "file:",
	Isolation:      sql.LevelReadUncommitted,
	IsolationStyle: IsolationNone,
	Begin:          "BEGIN DEFERRED",
	NativeBool:     false,
	BoolTrue:       int64(1),
	BoolFalse:      int64(0),
	Terminator:     ";",
	BusyTimeout:    DefaultBusyTimeout,
	InitStatements: []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = OFF",
		"PRAGMA read_uncommitted = 1",
		"PRAGMA case_sensitive_like = 1",
		"PRAGMA cache_size = 16384",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 120000",
	},
	Local:       true,
	Placeholder: Question,
}

// PostgreSQL is served by github.com/lib/pq.
var PostgreSQL = &Descriptor{
	Name:           "postgresql",
	Driver:         "postgres",
	URLPrefix:      "postgres://",
	Isolation:      sql.LevelReadCommitted,
	IsolationStyle: IsolationAfterBegin,
	NativeBool:     true,
	Terminator:     "",
	BusyTimeout:    DefaultBusyTimeout,
	Placeholder:    Dollar,
	DSNFunc:        postgresDSN,
}

// MySQL is served by github.com/go-sql-driver/mysql.
var MySQL = &Descriptor{
	Name:           "mysql",
	Driver:         "mysql",
	Isolation:      sql.LevelReadCommitted,
	IsolationStyle: IsolationBeforeBegin,
	Begin:          "START TRANSACTION",
	NativeBool:     false,
	BoolTrue:       int64(1),
	BoolFalse:      int64(0),
	Terminator:     "",
	BusyTimeout:    DefaultBusyTimeout,
	Placeholder:    Question,
	Params:         "charset=utf8mb4&parseTime=true",
	DSNFunc:        mysqlDSN,
}

// Builtin returns a fresh table holding the built-in dialects.
func Builtin() *Table {
	return NewTable(SQLite, PostgreSQL, MySQL)
}

func postgresDSN(raw, user, password string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse postgres url: %w", redact.URLError(err))
	}
	if user != "" && u.User == nil {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String(), nil
}

func mysqlDSN(raw, user, password string) (string, error) {
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn %q: %w", redact.DSN(raw), err)
	}
	if user != "" && cfg.User == "" {
		cfg.User = user
		cfg.Passwd = password
	}
	return cfg.FormatDSN(), nil
}
