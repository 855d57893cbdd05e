// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	lib "modernc.org/sqlite/lib"
)

var (
	ErrRegistryDestroyed = errors.New("registry destroyed")
	ErrPoolDestroyed     = errors.New("pool destroyed")
	ErrPoolExists        = errors.New("pool already registered")
	ErrUnknownPool       = errors.New("unknown pool")
	ErrInvalidPoolName   = errors.New("invalid pool name")
	ErrUnknownDialect    = errors.New("unknown dialect")
	ErrUnknownDriver     = errors.New("unknown driver")
	ErrConnClosed        = errors.New("connection closed")
	ErrStmtClosed        = errors.New("statement closed")
	ErrReadOnly          = errors.New("read-only session")
)

// PoolError reports a failed pool or registry operation.
type PoolError struct {
	Pool string
	Op   string
	Err  error
}

func (e *PoolError) Error() string {
	if e.Pool == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Pool, e.Err)
}

func (e *PoolError) Unwrap() error { return e.Err }

// SQLError reports a driver failure while preparing or running a
// statement.
type SQLError struct {
	Op  string
	SQL string
	Err error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, truncateSQL(e.SQL), e.Err)
}

func (e *SQLError) Unwrap() error { return e.Err }

func truncateSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

func sqlErr(op, query string, err error) error {
	if err == nil {
		return nil
	}
	var already *SQLError
	if errors.As(err, &already) {
		return err
	}
	return &SQLError{Op: op, SQL: query, Err: err}
}

// IsBusy reports whether err is lock contention: sqlite BUSY or LOCKED,
// a postgres deadlock or lock timeout, or a mysql lock wait failure.
func IsBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == lib.SQLITE_BUSY || code == lib.SQLITE_LOCKED
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40P01" || pqErr.Code == "55P03"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1205 || myErr.Number == 1213
	}
	return false
}

// IsConstraint reports whether err is an integrity constraint violation.
func IsConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == lib.SQLITE_CONSTRAINT
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1048, 1062, 1451, 1452:
			return true
		}
	}
	return false
}
