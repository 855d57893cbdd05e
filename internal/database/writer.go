// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"

	"github.com/maachang/origin-sub000/internal/dbinterface"
)

// Writer accumulates bound invocations of one prepared statement and runs
// them on Flush. Once more than the batch size is pending, Batch flushes
// on its own.
type Writer struct {
	s         *Session
	sql       string
	stmt      dbinterface.Stmt
	pending   [][]any
	threshold int
	closed    bool
}

func newWriter(s *Session, query string, stmt dbinterface.Stmt, threshold int) *Writer {
	return &Writer{
		s:         s,
		sql:       query,
		stmt:      stmt,
		threshold: ClampBatchSize(threshold),
	}
}

func (w *Writer) SQL() string    { return w.sql }
func (w *Writer) Pending() int   { return len(w.pending) }
func (w *Writer) IsClosed() bool { return w.closed }

func (w *Writer) check() error {
	if w.closed {
		return ErrStmtClosed
	}
	_, err := w.s.physical()
	return err
}

// Batch queues one invocation.
func (w *Writer) Batch(ctx context.Context, args ...any) error {
	if err := w.check(); err != nil {
		return err
	}
	w.pending = append(w.pending, w.s.bind(args))
	if len(w.pending) > w.threshold {
		_, err := w.Flush(ctx)
		return err
	}
	return nil
}

// Flush runs every pending invocation and returns the total affected rows.
func (w *Writer) Flush(ctx context.Context) (int, error) {
	counts, err := w.FlushCounts(ctx)
	total := 0
	for _, n := range counts {
		total += int(n)
	}
	return total, err
}

// FlushCounts runs every pending invocation in order and returns the
// affected rows of each. On failure the invocations that ran are dropped
// and the failed one stays pending with those after it.
func (w *Writer) FlushCounts(ctx context.Context) ([]int64, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	if len(w.pending) == 0 {
		return []int64{}, nil
	}

	ctx, cancel := w.s.statementContext(ctx)
	defer cancel()

	counts := make([]int64, 0, len(w.pending))
	for i, args := range w.pending {
		n, err := w.stmt.ExecContext(ctx, args...)
		if err != nil {
			w.pending = append([][]any(nil), w.pending[i:]...)
			return counts, sqlErr("flush", w.sql, err)
		}
		counts = append(counts, n)
	}
	w.pending = w.pending[:0]
	w.s.touch()
	return counts, nil
}

// ClearFlush discards pending invocations.
func (w *Writer) ClearFlush() {
	w.pending = nil
}

// Each flushes pending work, then runs one invocation immediately.
func (w *Writer) Each(ctx context.Context, args ...any) (int, error) {
	if err := w.check(); err != nil {
		return 0, err
	}
	if len(w.pending) > 0 {
		if _, err := w.Flush(ctx); err != nil {
			return 0, err
		}
	}

	ctx, cancel := w.s.statementContext(ctx)
	defer cancel()
	n, err := w.stmt.ExecContext(ctx, w.s.bind(args)...)
	if err != nil {
		return 0, sqlErr("exec", w.sql, err)
	}
	w.s.touch()
	return int(n), nil
}

// Close discards pending work, removes the writer from its session and
// closes the statement.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.ClearFlush()
	w.s.writers.remove(w.sql)
	return w.closeStmt()
}

func (w *Writer) closeStmt() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.stmt.Close()
}
