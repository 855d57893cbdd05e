// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Statement runs unprepared SQL text. Batch queues one statement per
// non-empty line of a script and runs them on Flush.
type Statement struct {
	s         *Session
	pending   []string
	threshold int
	closed    bool
}

func newStatement(s *Session, threshold int) *Statement {
	return &Statement{s: s, threshold: ClampBatchSize(threshold)}
}

func (st *Statement) Pending() int   { return len(st.pending) }
func (st *Statement) IsClosed() bool { return st.closed }

func (st *Statement) check() error {
	if st.closed {
		return ErrStmtClosed
	}
	_, err := st.s.physical()
	return err
}

// splitScript returns the trimmed, normalized, non-empty lines of script.
func (st *Statement) splitScript(script string) []string {
	lines := strings.Split(script, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, st.s.dialect.Normalize(line))
	}
	return out
}

// Batch queues every line of script.
func (st *Statement) Batch(ctx context.Context, script string) error {
	if err := st.check(); err != nil {
		return err
	}
	for _, line := range st.splitScript(script) {
		st.pending = append(st.pending, line)
		if len(st.pending) > st.threshold {
			if _, err := st.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush runs every queued line in order and returns the total affected
// rows. A failing line stays queued with the lines after it.
func (st *Statement) Flush(ctx context.Context) (int, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	if len(st.pending) == 0 {
		return 0, nil
	}

	total := 0
	for i, query := range st.pending {
		n, err := st.exec(ctx, query)
		if err != nil {
			st.pending = append([]string(nil), st.pending[i:]...)
			return total, err
		}
		total += int(n)
	}
	st.pending = st.pending[:0]
	st.s.touch()
	return total, nil
}

// ClearFlush discards queued lines.
func (st *Statement) ClearFlush() {
	st.pending = nil
}

// Each flushes queued lines, then runs every line of script right away.
// The result holds one entry per line, nil where the line succeeded.
func (st *Statement) Each(ctx context.Context, script string) ([]error, error) {
	if err := st.check(); err != nil {
		return nil, err
	}
	if _, err := st.Flush(ctx); err != nil {
		return nil, err
	}

	lines := st.splitScript(script)
	errs := make([]error, len(lines))
	for i, query := range lines {
		if _, err := st.exec(ctx, query); err != nil {
			log.Debug().Err(err).Int("line", i+1).Msg("statement line failed")
			errs[i] = err
		}
	}
	st.s.touch()
	return errs, nil
}

// Exec runs one statement immediately and returns the affected rows.
func (st *Statement) Exec(ctx context.Context, query string, args ...any) (int, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	n, err := st.exec(ctx, st.s.dialect.Normalize(query), st.s.bind(args)...)
	if err != nil {
		return 0, err
	}
	st.s.touch()
	return int(n), nil
}

func (st *Statement) exec(ctx context.Context, query string, args ...any) (int64, error) {
	stmt, err := st.s.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	ctx, cancel := st.s.statementContext(ctx)
	defer cancel()
	n, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, sqlErr("exec", query, err)
	}
	return n, nil
}

// Query runs query and returns a cursor yielding at most limit rows. A
// non-positive limit means no row cap.
func (st *Statement) Query(ctx context.Context, query string, limit int, args ...any) (*Cursor, error) {
	if st.closed {
		return nil, ErrStmtClosed
	}
	query = st.s.dialect.Normalize(query)
	stmt, err := st.s.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	qctx, cancel := st.s.statementContext(ctx)
	rows, err := stmt.QueryContext(qctx, st.s.bind(args)...)
	if err != nil {
		cancel()
		stmt.Close()
		return nil, sqlErr("query", query, err)
	}
	meta, err := newMeta(rows)
	if err != nil {
		rows.Close()
		cancel()
		stmt.Close()
		return nil, sqlErr("query", query, err)
	}
	if limit < 0 {
		limit = 0
	}
	fetch := st.s.opts.fetchSize
	if limit > 0 {
		fetch = min(limit, fetch)
	}
	st.s.touch()
	return newCursor(rows, meta, limit, fetch, func() {
		cancel()
		if err := stmt.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close ad-hoc query statement")
		}
	}), nil
}

// Close discards queued lines. The session creates a fresh statement on
// the next Session.Statement call.
func (st *Statement) Close() error {
	st.pending = nil
	st.closed = true
	return nil
}
