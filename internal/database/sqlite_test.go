// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(Options{DisableMonitor: true, DefaultPool: "main"})
	t.Cleanup(r.Destroy)
	require.NoError(t, r.Register(PoolConfig{
		Name:    "main",
		URL:     filepath.Join(t.TempDir(), "main.db"),
		MaxSize: 2,
	}))
	return r
}

func seedUsers(t *testing.T, r *Registry, n int) {
	t.Helper()
	ctx := context.Background()

	s, err := r.GetConnection(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Statement()
	require.NoError(t, err)
	require.NoError(t, st.Batch(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, user_name TEXT NOT NULL, active INTEGER NOT NULL)"))
	require.NoError(t, s.Commit(ctx))

	w, err := s.Writer(ctx, "INSERT INTO users (id, user_name, active) VALUES (?, ?, ?)")
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		require.NoError(t, w.Batch(ctx, i, fmt.Sprintf("user%02d", i), i%2 == 0))
	}
	require.NoError(t, s.Commit(ctx))
}

func countUsers(t *testing.T, s *Session) int64 {
	t.Helper()
	rd, err := s.Reader(context.Background(), "SELECT COUNT(*) AS total FROM users", false)
	require.NoError(t, err)
	cur, err := rd.Query(context.Background())
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	n, ok := rows[0].Int64("total")
	require.True(t, ok)
	return n
}

func TestSQLite_WriteCommitAndPaginate(t *testing.T) {
	r := newSQLiteRegistry(t)
	seedUsers(t, r, 25)
	ctx := context.Background()

	s, err := r.GetConnection(ctx, "main")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, int64(25), countUsers(t, s))

	rd, err := s.Reader(ctx, "SELECT id, user_name, active FROM users WHERE id > ? ORDER BY id", true)
	require.NoError(t, err)
	rd.SetPosition(10, 5)

	cur, err := rd.Query(ctx, 0)
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 10)

	first := rows[0]
	id, ok := first.Int64("id")
	require.True(t, ok)
	assert.Equal(t, int64(6), id)
	assert.Equal(t, "user06", first.String("userName"))
	active, ok := first.Bool("active")
	require.True(t, ok)
	assert.True(t, active)
	assert.Equal(t, "INTEGER", rd.Meta().Type(0))

	rd.Next()
	cur, err = rd.Query(ctx, 0)
	require.NoError(t, err)
	rows, err = cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 10)
	id, _ = rows[0].Int64("id")
	assert.Equal(t, int64(16), id)
}

func TestSQLite_RollbackDiscardsWork(t *testing.T) {
	r := newSQLiteRegistry(t)
	seedUsers(t, r, 5)
	ctx := context.Background()

	s, err := r.GetConnection(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(ctx, "DELETE FROM users")
	require.NoError(t, err)
	n, err := w.Each(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(0), countUsers(t, s))

	require.NoError(t, s.Rollback(ctx))
	assert.Equal(t, int64(5), countUsers(t, s))
}

func TestSQLite_CloseRollsBackUncommitted(t *testing.T) {
	r := newSQLiteRegistry(t)
	seedUsers(t, r, 3)
	ctx := context.Background()

	s, err := r.GetConnection(ctx, "")
	require.NoError(t, err)
	id := s.ID()
	w, err := s.Writer(ctx, "INSERT INTO users (id, user_name, active) VALUES (?, ?, ?)")
	require.NoError(t, err)
	_, err = w.Each(ctx, 100, "ghost", false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = r.GetConnection(ctx, "")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, id, s.ID(), "the released handle is reused")
	assert.Equal(t, int64(3), countUsers(t, s))
}

func TestSQLite_ConstraintViolation(t *testing.T) {
	r := newSQLiteRegistry(t)
	seedUsers(t, r, 1)
	ctx := context.Background()

	s, err := r.GetConnection(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(ctx, "INSERT INTO users (id, user_name, active) VALUES (?, ?, ?)")
	require.NoError(t, err)
	_, err = w.Each(ctx, 1, "dup", true)
	require.Error(t, err)
	assert.True(t, IsConstraint(err))
	assert.False(t, IsBusy(err))

	var sqlError *SQLError
	require.ErrorAs(t, err, &sqlError)
	assert.Equal(t, "exec", sqlError.Op)
}

func TestSQLite_StatementEachAndQuery(t *testing.T) {
	r := newSQLiteRegistry(t)
	seedUsers(t, r, 4)
	ctx := context.Background()

	s, err := r.GetConnection(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Statement()
	require.NoError(t, err)
	errs, err := st.Each(ctx, "UPDATE users SET active = 0\nUPDATE missing_table SET x = 1\nDELETE FROM users WHERE id = 4")
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
	require.NoError(t, s.Commit(ctx))

	cur, err := st.Query(ctx, "SELECT id, active FROM users ORDER BY id", 2)
	require.NoError(t, err)
	rows, err := cur.All()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		active, ok := row.Bool("active")
		require.True(t, ok)
		assert.False(t, active)
	}
	assert.Equal(t, int64(3), countUsers(t, s))
}

func TestSQLite_ReadOnlyStandaloneSession(t *testing.T) {
	r := newSQLiteRegistry(t)
	seedUsers(t, r, 2)
	ctx := context.Background()

	p, err := r.pool("main")
	require.NoError(t, err)

	s, err := r.Open(ctx, true, nil, p.url, "", "")
	require.NoError(t, err)
	assert.False(t, s.Pooled())
	assert.Equal(t, int64(2), countUsers(t, s))

	_, err = s.Writer(ctx, "DELETE FROM users")
	assert.ErrorIs(t, err, ErrReadOnly)
	require.NoError(t, s.Close())
	assert.True(t, s.conn.IsDestroyed())
}
