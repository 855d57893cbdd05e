// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"

	"github.com/maachang/origin-sub000/internal/dbinterface"
)

var (
	driversMu       sync.Mutex
	driverFactories = map[string]func() driver.Driver{
		"sqlite":   func() driver.Driver { return &sqlite.Driver{} },
		"postgres": func() driver.Driver { return &pq.Driver{} },
		"mysql":    func() driver.Driver { return &mysql.MySQLDriver{} },
	}
)

// RegisterDriver makes factory available to SQLConnector.Register under
// name. It does not touch database/sql until a connect needs the driver.
func RegisterDriver(name string, factory func() driver.Driver) {
	driversMu.Lock()
	driverFactories[name] = factory
	driversMu.Unlock()
}

// SQLConnector opens physical handles through database/sql. Every handle
// owns a private *sql.DB capped at one connection, so the Pool stays the
// only pooling layer and prepared statements stay on one session.
type SQLConnector struct{}

// Register ensures driver is known to database/sql.
func (SQLConnector) Register(name string) error {
	driversMu.Lock()
	defer driversMu.Unlock()

	if slices.Contains(sql.Drivers(), name) {
		return nil
	}
	factory, ok := driverFactories[name]
	if !ok {
		return errors.Wrapf(ErrUnknownDriver, "register %q", name)
	}
	sql.Register(name, factory())
	log.Debug().Str("driver", name).Msg("registered database driver")
	return nil
}

// Connect opens one physical handle for target.
func (SQLConnector) Connect(ctx context.Context, target dbinterface.Target) (dbinterface.Conn, error) {
	db, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &sqlConn{db: db, conn: conn, begin: target.Begin}, nil
}

type sqlConn struct {
	db     *sql.DB
	conn   *sql.Conn
	begin  []string
	inTx   bool
	closed atomic.Bool
}

// ensureTx opens the transaction on first use after a commit or rollback.
func (c *sqlConn) ensureTx(ctx context.Context) error {
	if c.inTx {
		return nil
	}
	for i, stmt := range c.begin {
		if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
			if i > 0 {
				if _, rbErr := c.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
					log.Debug().Err(rbErr).Msg("rollback after failed begin")
				}
			}
			return errors.Wrapf(err, "begin transaction with %q", stmt)
		}
	}
	c.inTx = true
	return nil
}

func (c *sqlConn) PrepareContext(ctx context.Context, query string) (dbinterface.Stmt, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqlStmt{conn: c, stmt: stmt}, nil
}

func (c *sqlConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	if c.closed.Load() {
		return 0, ErrConnClosed
	}
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (c *sqlConn) Commit(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	if _, err := c.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	c.inTx = false
	return nil
}

func (c *sqlConn) Rollback(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	c.inTx = false
	_, err := c.conn.ExecContext(ctx, "ROLLBACK")
	return err
}

func (c *sqlConn) InTx() bool { return c.inTx }

func (c *sqlConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.conn.Close()
	if dbErr := c.db.Close(); dbErr != nil && err == nil {
		err = dbErr
	}
	return err
}

type sqlStmt struct {
	conn *sqlConn
	stmt *sql.Stmt
}

func (s *sqlStmt) ExecContext(ctx context.Context, args ...any) (int64, error) {
	if err := s.conn.ensureTx(ctx); err != nil {
		return 0, err
	}
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (s *sqlStmt) QueryContext(ctx context.Context, args ...any) (dbinterface.Rows, error) {
	if err := s.conn.ensureTx(ctx); err != nil {
		return nil, err
	}
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (s *sqlStmt) Close() error {
	return s.stmt.Close()
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) TypeNames() ([]string, error) {
	types, err := r.ColumnTypes()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.DatabaseTypeName()
	}
	return names, nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
