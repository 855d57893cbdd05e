// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/maachang/origin-sub000/internal/clock"
	"github.com/maachang/origin-sub000/internal/dbinterface"
	"github.com/maachang/origin-sub000/internal/dialect"
	"github.com/maachang/origin-sub000/internal/pkg/timeouts"
	"github.com/maachang/origin-sub000/pkg/redact"
)

const (
	DefaultMaxSize = 10
	MaxPoolSize    = 50
	DefaultTimeout = 60 * time.Second
	MaxTimeout     = 30 * time.Minute

	initStatementTimeout = 5 * time.Second
)

// ClampMaxSize applies the default to non-positive sizes and the hard cap
// to oversized ones.
func ClampMaxSize(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxSize
	case n > MaxPoolSize:
		return MaxPoolSize
	default:
		return n
	}
}

// ClampTimeout applies the default to non-positive timeouts and the hard
// cap to oversized ones.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

// PoolConfig describes one logical database.
type PoolConfig struct {
	Name     string
	Dialect  *dialect.Descriptor
	URL      string
	User     string
	Password string
	MaxSize  int
	Timeout  time.Duration
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Name      string
	Dialect   string
	URL       string
	MaxSize   int
	Timeout   time.Duration
	Idle      int
	Created   uint64
	Reused    uint64
	Destroyed uint64
	Evicted   uint64
	Checkouts uint64
}

// Pool keeps idle physical handles for one logical database.
//
// IDLE QUEUE:
//
// The idle queue is a buffered channel sized to MaxSize. Checkout is a
// non-blocking receive and release a non-blocking send, so neither ever
// waits on another caller. A release that finds the queue full physically
// closes the handle, which keeps the idle count at or below MaxSize. There
// is no cap on checked-out handles.
//
// DESTROY:
//
// Destroy sets the destroyed flag, deregisters from the monitor and drains
// the queue. A release racing with Destroy re-checks the flag after its
// send and drains again, so no handle outlives the pool.
type Pool struct {
	name      string
	dialect   *dialect.Descriptor
	url       string
	target    dbinterface.Target
	maxSize   int
	timeout   time.Duration
	idle      chan *PooledConn
	connector dbinterface.Connector
	clock     clock.Clock
	monitor   *Monitor

	destroyed   atomic.Bool
	destroyOnce sync.Once

	created        atomic.Uint64
	reused         atomic.Uint64
	destroyedCount atomic.Uint64
	evicted        atomic.Uint64
	checkouts      atomic.Uint64
}

func newPool(cfg PoolConfig, connector dbinterface.Connector, clk clock.Clock, monitor *Monitor) (*Pool, error) {
	dsn, err := cfg.Dialect.DSN(cfg.URL, cfg.User, cfg.Password)
	if err != nil {
		return nil, err
	}
	maxSize := ClampMaxSize(cfg.MaxSize)
	return &Pool{
		name:    cfg.Name,
		dialect: cfg.Dialect,
		url:     cfg.Dialect.CheckURL(cfg.URL),
		target: dbinterface.Target{
			Driver: cfg.Dialect.Driver,
			DSN:    dsn,
			Begin:  cfg.Dialect.BeginStatements(),
		},
		maxSize:   maxSize,
		timeout:   ClampTimeout(cfg.Timeout),
		idle:      make(chan *PooledConn, maxSize),
		connector: connector,
		clock:     clk,
		monitor:   monitor,
	}, nil
}

func (p *Pool) Name() string                 { return p.name }
func (p *Pool) Dialect() *dialect.Descriptor { return p.dialect }
func (p *Pool) MaxSize() int                 { return p.maxSize }
func (p *Pool) Timeout() time.Duration       { return p.timeout }
func (p *Pool) IdleCount() int               { return len(p.idle) }
func (p *Pool) IsDestroyed() bool            { return p.destroyed.Load() }

// checkout returns an idle handle reopened for a new holder, or a fresh
// one when the queue is empty.
func (p *Pool) checkout(ctx context.Context) (*PooledConn, error) {
	if p.destroyed.Load() {
		return nil, &PoolError{Pool: p.name, Op: "checkout", Err: ErrPoolDestroyed}
	}
	p.checkouts.Add(1)

	for {
		select {
		case pc := <-p.idle:
			if pc.reopen() {
				p.reused.Add(1)
				return pc, nil
			}
			pc.Destroy()
			continue
		default:
		}
		break
	}

	conn, err := dial(ctx, p.connector, p.dialect, p.target)
	if err != nil {
		return nil, &PoolError{Pool: p.name, Op: "checkout", Err: err}
	}
	p.created.Add(1)
	pc := newPooledConn(conn, p, p.clock)
	log.Debug().Str("pool", p.name).Uint64("conn", pc.id).Msg("opened new physical connection")
	return pc, nil
}

// release takes a handle back from PooledConn.Close.
func (p *Pool) release(pc *PooledConn) {
	if p.destroyed.Load() {
		pc.Destroy()
		return
	}

	select {
	case p.idle <- pc:
	default:
		log.Trace().Str("pool", p.name).Uint64("conn", pc.id).Msg("idle queue full, closing connection")
		if err := pc.Destroy(); err != nil {
			log.Debug().Err(err).Str("pool", p.name).Msg("failed to close surplus connection")
		}
		return
	}

	if p.destroyed.Load() {
		p.drain()
	}
}

// evictIdle destroys queued handles idle longer than the pool timeout and
// re-queues the rest. It inspects at most the entries present on entry.
func (p *Pool) evictIdle(now time.Time) int {
	evicted := 0
	for n := len(p.idle); n > 0; n-- {
		var pc *PooledConn
		select {
		case pc = <-p.idle:
		default:
			return evicted
		}

		if p.inspect(pc, now) {
			evicted++
		}
	}
	return evicted
}

// inspect handles one popped entry; a panic is contained to that entry.
func (p *Pool) inspect(pc *PooledConn, now time.Time) (evicted bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("pool", p.name).Uint64("conn", pc.id).Msg("recovered while evicting connection")
			pc.Destroy()
			evicted = true
		}
	}()

	if pc.IsDestroyed() {
		return false
	}
	if pc.expired(now, p.timeout) {
		p.evicted.Add(1)
		if err := pc.Destroy(); err != nil {
			log.Debug().Err(err).Str("pool", p.name).Uint64("conn", pc.id).Msg("failed to close idle connection")
		}
		log.Debug().Str("pool", p.name).Uint64("conn", pc.id).Msg("evicted idle connection")
		return true
	}

	select {
	case p.idle <- pc:
	default:
		pc.Destroy()
	}
	if p.destroyed.Load() {
		p.drain()
	}
	return false
}

// destroy tears the pool down. It is idempotent.
func (p *Pool) destroy() {
	p.destroyOnce.Do(func() {
		p.destroyed.Store(true)
		if p.monitor != nil {
			p.monitor.Remove(p)
		}
		p.drain()
		log.Debug().Str("pool", p.name).Msg("pool destroyed")
	})
}

func (p *Pool) drain() {
	for {
		select {
		case pc := <-p.idle:
			if err := pc.Destroy(); err != nil {
				log.Debug().Err(err).Str("pool", p.name).Msg("failed to close pooled connection")
			}
		default:
			return
		}
	}
}

// Stats snapshots the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Dialect:   p.dialect.Name,
		URL:       redact.DSN(p.url),
		MaxSize:   p.maxSize,
		Timeout:   p.timeout,
		Idle:      len(p.idle),
		Created:   p.created.Load(),
		Reused:    p.reused.Load(),
		Destroyed: p.destroyedCount.Load(),
		Evicted:   p.evicted.Load(),
		Checkouts: p.checkouts.Load(),
	}
}

// dial opens one physical handle. A failed connect is retried once after
// re-registering the driver. Session init statements run on the new
// handle and their failures are ignored.
func dial(ctx context.Context, connector dbinterface.Connector, d *dialect.Descriptor, target dbinterface.Target) (dbinterface.Conn, error) {
	ctx, cancel := timeouts.WithConnectTimeout(ctx, 0)
	defer cancel()

	var (
		conn        dbinterface.Conn
		registerErr error
	)
	attempt := 0
	err := retry.Do(func() error {
		if attempt > 0 {
			if err := connector.Register(target.Driver); err != nil {
				registerErr = err
				return retry.Unrecoverable(err)
			}
		}
		attempt++

		c, err := connector.Connect(ctx, target)
		if err != nil {
			return err
		}
		conn = c
		return nil
	},
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n).Str("driver", target.Driver).Msg("connect failed, re-registering driver")
		}),
		retry.Attempts(2),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if registerErr != nil {
		err = registerErr
	}
	if err != nil {
		return nil, errors.Wrapf(redact.URLError(err), "connect %s", redact.DSN(target.DSN))
	}

	for _, stmt := range d.InitStatements {
		initCtx, initCancel := context.WithTimeout(ctx, initStatementTimeout)
		if _, err := conn.ExecContext(initCtx, stmt); err != nil {
			log.Debug().Err(err).Str("statement", stmt).Msg("session init statement failed")
		}
		initCancel()
	}

	return conn, nil
}
