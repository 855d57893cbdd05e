// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"math"

	"github.com/maachang/origin-sub000/internal/dbinterface"
)

// DefaultLimit is the page size of a paginated reader before SetLimit.
const DefaultLimit = math.MaxInt32

// Reader runs one prepared SELECT. A paginated reader keeps a limit and
// offset that Query binds after the caller's arguments.
type Reader struct {
	s         *Session
	sql       string
	stmt      dbinterface.Stmt
	paginated bool
	leading   int
	limit     int
	offset    int
	meta      *Meta
	closed    bool
}

func newReader(s *Session, query string, stmt dbinterface.Stmt, paginated bool, leading int) *Reader {
	return &Reader{
		s:         s,
		sql:       query,
		stmt:      stmt,
		paginated: paginated,
		leading:   leading,
		limit:     DefaultLimit,
	}
}

func (r *Reader) SQL() string     { return r.sql }
func (r *Reader) Paginated() bool { return r.paginated }
func (r *Reader) Limit() int      { return r.limit }
func (r *Reader) Offset() int     { return r.offset }
func (r *Reader) IsClosed() bool  { return r.closed }

// SetPosition sets limit and offset together.
func (r *Reader) SetPosition(limit, offset int) *Reader {
	return r.SetLimit(limit).SetOffset(offset)
}

// SetLimit sets the page size; non-positive restores DefaultLimit.
func (r *Reader) SetLimit(limit int) *Reader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	r.limit = limit
	return r
}

// SetOffset sets the first row; negative values become zero.
func (r *Reader) SetOffset(offset int) *Reader {
	if offset < 0 {
		offset = 0
	}
	r.offset = offset
	return r
}

// Next advances the offset by one page.
func (r *Reader) Next() *Reader {
	if r.offset > DefaultLimit-r.limit {
		r.offset = DefaultLimit
		return r
	}
	r.offset += r.limit
	return r
}

// Before moves the offset back one page, stopping at zero.
func (r *Reader) Before() *Reader {
	return r.SetOffset(r.offset - r.limit)
}

// Meta returns the column description of the last query, or nil before the
// first one.
func (r *Reader) Meta() *Meta { return r.meta }

// Query runs the reader. The returned cursor must be closed.
func (r *Reader) Query(ctx context.Context, args ...any) (*Cursor, error) {
	if r.closed {
		return nil, ErrStmtClosed
	}
	if _, err := r.s.physical(); err != nil {
		return nil, err
	}

	bound := r.s.bind(args)
	fetch := r.s.opts.fetchSize
	maxRows := 0
	if r.paginated {
		bound = append(bound, int64(r.limit), int64(r.offset))
		maxRows = r.limit
		fetch = min(r.limit, fetch)
	}

	qctx, cancel := r.s.statementContext(ctx)
	rows, err := r.stmt.QueryContext(qctx, bound...)
	if err != nil {
		cancel()
		return nil, sqlErr("query", r.sql, err)
	}
	if r.meta == nil {
		meta, err := newMeta(rows)
		if err != nil {
			rows.Close()
			cancel()
			return nil, sqlErr("query", r.sql, err)
		}
		r.meta = meta
	}
	r.s.touch()
	return newCursor(rows, r.meta, maxRows, fetch, cancel), nil
}

// Close removes the reader from its session and closes the statement.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.s.readers.remove(r.sql)
	return r.closeStmt()
}

func (r *Reader) closeStmt() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.stmt.Close()
}
