// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maachang/origin-sub000/internal/dbinterface"
	"github.com/maachang/origin-sub000/internal/dialect"
	"github.com/maachang/origin-sub000/internal/pkg/timeouts"
)

type sessionOptions struct {
	fetchSize int
	batchSize int
	readOnly  bool
	pooled    bool
}

// Session is one checkout of a physical handle. It is owned by a single
// goroutine until Close.
type Session struct {
	conn    *PooledConn
	dialect *dialect.Descriptor
	opts    sessionOptions

	readers *stmtCache
	writers *stmtCache
	stmt    *Statement

	busyTimeout time.Duration
	closed      bool
}

func newSession(pc *PooledConn, d *dialect.Descriptor, opts sessionOptions) *Session {
	opts.fetchSize = ClampFetchSize(opts.fetchSize)
	opts.batchSize = ClampBatchSize(opts.batchSize)
	return &Session{
		conn:        pc,
		dialect:     d,
		opts:        opts,
		readers:     newStmtCache("read", readCacheSize),
		writers:     newStmtCache("write", writeCacheSize),
		busyTimeout: d.Timeout(),
	}
}

func (s *Session) ID() uint64                   { return s.conn.ID() }
func (s *Session) Dialect() *dialect.Descriptor { return s.dialect }
func (s *Session) ReadOnly() bool               { return s.opts.readOnly }
func (s *Session) Pooled() bool                 { return s.opts.pooled }
func (s *Session) FetchSize() int               { return s.opts.fetchSize }
func (s *Session) BatchSize() int               { return s.opts.batchSize }
func (s *Session) IsClosed() bool               { return s.closed || s.conn.IsClosed() }

// LastAccess is the last checkout, statement, commit or rollback time.
func (s *Session) LastAccess() time.Time { return s.conn.LastActive() }

// BusyTimeout is the deadline applied to each statement whose context has
// none.
func (s *Session) BusyTimeout() time.Duration { return s.busyTimeout }

// SetBusyTimeout changes the per-statement deadline. Zero disables it.
func (s *Session) SetBusyTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.busyTimeout = d
}

func (s *Session) physical() (dbinterface.Conn, error) {
	if s.closed {
		return nil, ErrConnClosed
	}
	return s.conn.Physical()
}

func (s *Session) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return timeouts.WithStatementTimeout(ctx, s.busyTimeout)
}

func (s *Session) touch() { s.conn.touch() }

func (s *Session) prepare(ctx context.Context, query string) (dbinterface.Stmt, error) {
	conn, err := s.physical()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.statementContext(ctx)
	defer cancel()
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, sqlErr("prepare", query, err)
	}
	return stmt, nil
}

// Reader returns the cached reader for query, preparing it on a miss.
// Paginated readers get the dialect's LIMIT/OFFSET clause appended and
// bind the limit and offset after the caller's arguments.
func (s *Session) Reader(ctx context.Context, query string, paginated bool) (*Reader, error) {
	if _, err := s.physical(); err != nil {
		return nil, err
	}

	leading := 0
	if paginated {
		base := dialect.StripTerminator(query)
		leading = s.dialect.CountPlaceholders(base)
		query = base + s.dialect.PaginationClause(leading)
	}
	query = s.dialect.Normalize(query)

	if op, ok := s.readers.get(query); ok {
		s.touch()
		return op.(*Reader), nil
	}

	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	r := newReader(s, query, stmt, paginated, leading)
	s.readers.put(ctx, query, r)
	s.touch()
	return r, nil
}

// Writer returns the cached writer for query, preparing it on a miss.
func (s *Session) Writer(ctx context.Context, query string) (*Writer, error) {
	if s.opts.readOnly {
		return nil, ErrReadOnly
	}
	if _, err := s.physical(); err != nil {
		return nil, err
	}

	query = s.dialect.Normalize(query)
	if op, ok := s.writers.get(query); ok {
		s.touch()
		return op.(*Writer), nil
	}

	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	w := newWriter(s, query, stmt, s.opts.batchSize)
	s.writers.put(ctx, query, w)
	s.touch()
	return w, nil
}

// Statement returns the session's ad-hoc statement, creating it on first
// use or after it was closed.
func (s *Session) Statement() (*Statement, error) {
	if s.opts.readOnly {
		return nil, ErrReadOnly
	}
	if _, err := s.physical(); err != nil {
		return nil, err
	}
	if s.stmt == nil || s.stmt.closed {
		s.stmt = newStatement(s, s.opts.batchSize)
	}
	s.touch()
	return s.stmt, nil
}

// Commit flushes every writer with pending work and the ad-hoc statement,
// then commits. A flush failure aborts the commit.
func (s *Session) Commit(ctx context.Context) error {
	conn, err := s.physical()
	if err != nil {
		return err
	}

	if err := s.writers.each(func(op cachedOp) error {
		w := op.(*Writer)
		if w.Pending() == 0 {
			return nil
		}
		_, err := w.Flush(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if s.stmt != nil && !s.stmt.closed && s.stmt.Pending() > 0 {
		if _, err := s.stmt.Flush(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	ctx, cancel := s.statementContext(ctx)
	defer cancel()
	if err := conn.Commit(ctx); err != nil {
		return sqlErr("commit", "COMMIT", err)
	}
	s.touch()
	return nil
}

// Rollback discards pending work on every writer and the ad-hoc statement,
// then rolls back.
func (s *Session) Rollback(ctx context.Context) error {
	conn, err := s.physical()
	if err != nil {
		return err
	}
	s.clearPending()

	ctx, cancel := s.statementContext(ctx)
	defer cancel()
	if err := conn.Rollback(ctx); err != nil {
		return sqlErr("rollback", "ROLLBACK", err)
	}
	s.touch()
	return nil
}

func (s *Session) clearPending() {
	_ = s.writers.each(func(op cachedOp) error {
		op.(*Writer).ClearFlush()
		return nil
	})
	if s.stmt != nil {
		s.stmt.ClearFlush()
	}
}

// Close rolls back, closes every cached statement without flushing and
// hands the handle back to its pool. A standalone session closes the
// handle. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	if !s.conn.IsClosed() {
		if err := s.Rollback(context.Background()); err != nil {
			log.Debug().Err(err).Uint64("conn", s.conn.ID()).Msg("rollback on session close failed")
		}
	}
	s.closed = true

	s.readers.purge()
	s.writers.purge()
	if s.stmt != nil {
		s.stmt.Close()
		s.stmt = nil
	}
	return s.conn.Close()
}
