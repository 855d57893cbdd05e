// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maachang/origin-sub000/internal/clock"
	"github.com/maachang/origin-sub000/internal/dbinterface"
)

const closeRollbackTimeout = 5 * time.Second

type connState int32

const (
	stateOpen connState = iota
	stateLogicalClosed
	stateDestroyed
)

func (s connState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateLogicalClosed:
		return "closed"
	default:
		return "destroyed"
	}
}

var connIDs atomic.Uint64

// PooledConn is the logical handle a caller holds. It wraps one physical
// handle and moves through Open, LogicalClosed and Destroyed. Closing it
// returns the physical handle to its pool instead of ending the session.
//
// Only Close and Destroy may be called concurrently with the owner's use;
// everything else belongs to the goroutine that checked the handle out.
type PooledConn struct {
	id    uint64
	conn  dbinterface.Conn
	pool  *Pool
	clock clock.Clock

	state       atomic.Int32
	lastRelease atomic.Int64
	lastActive  atomic.Int64
}

func newPooledConn(conn dbinterface.Conn, pool *Pool, clk clock.Clock) *PooledConn {
	pc := &PooledConn{
		id:    connIDs.Add(1),
		conn:  conn,
		pool:  pool,
		clock: clk,
	}
	now := clk.Now().UnixNano()
	pc.lastRelease.Store(now)
	pc.lastActive.Store(now)
	return pc
}

// ID identifies the physical handle for its whole life.
func (pc *PooledConn) ID() uint64 { return pc.id }

func (pc *PooledConn) currentState() connState { return connState(pc.state.Load()) }

// IsClosed reports whether the handle is not usable by its holder.
func (pc *PooledConn) IsClosed() bool { return pc.currentState() != stateOpen }

// IsDestroyed reports whether the physical handle has been released.
func (pc *PooledConn) IsDestroyed() bool { return pc.currentState() == stateDestroyed }

// Physical returns the wrapped handle while the wrapper is Open.
func (pc *PooledConn) Physical() (dbinterface.Conn, error) {
	if pc.currentState() != stateOpen {
		return nil, ErrConnClosed
	}
	return pc.conn, nil
}

// LastRelease is when the handle last went back to its pool.
func (pc *PooledConn) LastRelease() time.Time {
	return time.Unix(0, pc.lastRelease.Load())
}

// LastActive is the last checkout, commit or rollback time.
func (pc *PooledConn) LastActive() time.Time {
	return time.Unix(0, pc.lastActive.Load())
}

func (pc *PooledConn) touch() {
	pc.lastActive.Store(pc.clock.Now().UnixNano())
}

// Close ends the holder's use. An open transaction is rolled back, then a
// pooled handle returns to its pool and a standalone one is destroyed.
// Close is idempotent.
func (pc *PooledConn) Close() error {
	if !pc.state.CompareAndSwap(int32(stateOpen), int32(stateLogicalClosed)) {
		return nil
	}

	if pc.conn.InTx() {
		ctx, cancel := context.WithTimeout(context.Background(), closeRollbackTimeout)
		err := pc.conn.Rollback(ctx)
		cancel()
		if err != nil {
			log.Debug().Err(err).Uint64("conn", pc.id).Msg("rollback on close failed, destroying connection")
			pc.Destroy()
			return nil
		}
	}

	pc.lastRelease.Store(pc.clock.Now().UnixNano())
	if pc.pool == nil {
		return pc.Destroy()
	}
	pc.pool.release(pc)
	return nil
}

// Destroy physically closes the handle from any state.
func (pc *PooledConn) Destroy() error {
	if connState(pc.state.Swap(int32(stateDestroyed))) == stateDestroyed {
		return nil
	}
	if pc.pool != nil {
		pc.pool.destroyedCount.Add(1)
	}
	return pc.conn.Close()
}

// reopen moves a LogicalClosed handle back to Open for a new holder.
func (pc *PooledConn) reopen() bool {
	if !pc.state.CompareAndSwap(int32(stateLogicalClosed), int32(stateOpen)) {
		return false
	}
	pc.touch()
	return true
}

// expired reports whether the handle has idled longer than timeout.
func (pc *PooledConn) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(pc.LastRelease()) > timeout
}
