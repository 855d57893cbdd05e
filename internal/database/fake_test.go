// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maachang/origin-sub000/internal/clock"
	"github.com/maachang/origin-sub000/internal/dbinterface"
	"github.com/maachang/origin-sub000/internal/dialect"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var errFakeExec = errors.New("fake exec failure")

// opLog records driver calls in order across every fake handle.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(format string, args ...any) {
	l.mu.Lock()
	l.ops = append(l.ops, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *opLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func (l *opLog) count(prefix string) int {
	n := 0
	for _, op := range l.all() {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func (l *opLog) reset() {
	l.mu.Lock()
	l.ops = nil
	l.mu.Unlock()
}

type fakeResult struct {
	columns []string
	types   []string
	rows    [][]any
}

type fakeConnector struct {
	mu           sync.Mutex
	log          *opLog
	failConnects int
	registerErr  error
	connects     int
	registers    int
	conns        []*fakeConn
	results      map[string]fakeResult
	// failExec makes ExecContext fail for matching statements and args.
	failExec func(query string, args []any) bool
	lastArgs map[string][]any
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		log:      &opLog{},
		results:  make(map[string]fakeResult),
		lastArgs: make(map[string][]any),
	}
}

func (c *fakeConnector) Register(driver string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registers++
	c.log.add("register %s", driver)
	return c.registerErr
}

func (c *fakeConnector) Connect(_ context.Context, target dbinterface.Target) (dbinterface.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.failConnects > 0 {
		c.failConnects--
		c.log.add("connect-fail %s", target.Driver)
		return nil, fmt.Errorf("dial %s: connection refused", target.Driver)
	}
	conn := &fakeConn{id: len(c.conns) + 1, connector: c, target: target}
	c.conns = append(c.conns, conn)
	c.log.add("connect %d", conn.id)
	return conn, nil
}

func (c *fakeConnector) setResult(query string, r fakeResult) {
	c.mu.Lock()
	c.results[query] = r
	c.mu.Unlock()
}

func (c *fakeConnector) args(query string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastArgs[query]
}

func (c *fakeConnector) connCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

func (c *fakeConnector) conn(i int) *fakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[i]
}

type fakeConn struct {
	mu        sync.Mutex
	id        int
	connector *fakeConnector
	target    dbinterface.Target
	inTx      bool
	closed    int
	commits   int
	rollbacks int
	setup     []string
}

func (c *fakeConn) PrepareContext(_ context.Context, query string) (dbinterface.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed > 0 {
		return nil, ErrConnClosed
	}
	if strings.Contains(query, "syntax error") {
		return nil, errors.New("near \"syntax\": syntax error")
	}
	c.connector.log.add("prepare %s", query)
	return &fakeStmt{conn: c, query: query}, nil
}

func (c *fakeConn) ExecContext(_ context.Context, query string, _ ...any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setup = append(c.setup, query)
	return 0, nil
}

func (c *fakeConn) Commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTx {
		c.commits++
		c.inTx = false
	}
	c.connector.log.add("commit %d", c.id)
	return nil
}

func (c *fakeConn) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTx {
		c.rollbacks++
		c.inTx = false
	}
	c.connector.log.add("rollback %d", c.id)
	return nil
}

func (c *fakeConn) InTx() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.connector.log.add("close-conn %d", c.id)
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeStmt struct {
	conn   *fakeConn
	query  string
	closed bool
}

func (s *fakeStmt) ExecContext(_ context.Context, args ...any) (int64, error) {
	s.conn.mu.Lock()
	s.conn.inTx = true
	s.conn.mu.Unlock()

	c := s.conn.connector
	c.mu.Lock()
	fail := c.failExec != nil && c.failExec(s.query, args)
	c.lastArgs[s.query] = args
	c.mu.Unlock()
	if fail {
		c.log.add("exec-fail %s %v", s.query, args)
		return 0, errFakeExec
	}
	c.log.add("exec %s %v", s.query, args)
	return 1, nil
}

func (s *fakeStmt) QueryContext(_ context.Context, args ...any) (dbinterface.Rows, error) {
	s.conn.mu.Lock()
	s.conn.inTx = true
	s.conn.mu.Unlock()

	c := s.conn.connector
	c.mu.Lock()
	res, ok := c.results[s.query]
	c.lastArgs[s.query] = args
	c.mu.Unlock()
	c.log.add("query %s %v", s.query, args)
	if !ok {
		res = fakeResult{columns: []string{"n"}, types: []string{"INTEGER"}}
	}
	return &fakeRows{res: res, pos: -1}, nil
}

func (s *fakeStmt) Close() error {
	s.closed = true
	s.conn.connector.log.add("close-stmt %s", s.query)
	return nil
}

type fakeRows struct {
	res    fakeResult
	pos    int
	closed bool
}

func (r *fakeRows) Columns() ([]string, error)   { return r.res.columns, nil }
func (r *fakeRows) TypeNames() ([]string, error) { return r.res.types, nil }
func (r *fakeRows) Err() error                   { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.res.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.res.rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(row), len(dest))
	}
	for i, v := range row {
		*(dest[i].(*any)) = v
	}
	return nil
}

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

// newTestRegistry builds a registry on fakes with the monitor stopped and
// registers "main" with the given limits.
func newTestRegistry(t *testing.T, maxSize int, timeout time.Duration) (*Registry, *fakeConnector, *clock.FakeClock) {
	t.Helper()
	connector := newFakeConnector()
	clk := clock.Fake(epoch)
	r := New(Options{
		Connector:      connector,
		Clock:          clk,
		DefaultPool:    "main",
		DisableMonitor: true,
	})
	t.Cleanup(r.Destroy)

	require.NoError(t, r.Register(PoolConfig{
		Name:    "main",
		Dialect: dialect.SQLite,
		URL:     "/tmp/main.db",
		MaxSize: maxSize,
		Timeout: timeout,
	}))
	return r, connector, clk
}

func mustSession(t *testing.T, r *Registry, name string) *Session {
	t.Helper()
	s, err := r.GetConnection(context.Background(), name)
	require.NoError(t, err)
	return s
}
