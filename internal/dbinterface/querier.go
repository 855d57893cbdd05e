// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface provides the physical handle interfaces the pooling
// layer drives. This package has no dependencies so both the database/sql
// backed connector and test fakes can implement it without import cycles.
package dbinterface

import "context"

// Target identifies what a Connector should open.
type Target struct {
	// Driver is the database/sql driver name.
	Driver string
	// DSN is the fully built data source name, credentials included.
	DSN string
	// Begin lists the statements that open a transaction on the handle.
	Begin []string
}

// Connector opens physical handles.
type Connector interface {
	Connect(ctx context.Context, target Target) (Conn, error)
	// Register makes driver available for Connect. It is called once
	// before the single connect retry.
	Register(driver string) error
}

// Conn is one physical database handle. Work done through prepared
// statements runs inside a transaction that the handle opens lazily and
// that Commit or Rollback ends. ExecContext runs outside that transaction
// and is meant for session setup.
type Conn interface {
	PrepareContext(ctx context.Context, query string) (Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	InTx() bool
	Close() error
}

// Stmt is a prepared statement bound to one Conn.
type Stmt interface {
	ExecContext(ctx context.Context, args ...any) (int64, error)
	QueryContext(ctx context.Context, args ...any) (Rows, error)
	Close() error
}

// Rows is a forward-only result set.
type Rows interface {
	Columns() ([]string, error)
	// TypeNames returns the database type name of every column. Drivers
	// that cannot tell return empty strings.
	TypeNames() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
