// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package database provides a pooled relational access layer.
//
// POOLING MODEL:
//
// A Registry owns named Pools. Each Pool keeps up to MaxSize idle physical
// handles in a lock-free queue:
//   - GetConnection: pops an idle handle or dials a new one, never blocks
//   - Session.Close: rolls back, then returns the handle to the queue
//   - A full queue or a destroyed pool closes the handle physically
//   - One Monitor goroutine per Registry evicts handles idle past Timeout
//
// SESSIONS:
//
// A Session is one checkout. It owns two LRU statement caches (5 readers,
// 10 writers) and one lazily created ad-hoc Statement. Writers accumulate
// bound invocations and flush them in batches; Commit flushes every writer
// before committing and Rollback discards pending work before rolling back.
// Sessions are not safe for concurrent use; the Registry and Pools are.
//
// TRANSACTIONS:
//
// Physical handles open a transaction lazily on the first prepared
// statement and keep it until Commit or Rollback, so cached statements
// survive across transactions.
//
// FAILURE MODES:
//
//  1. Connect fails: retried once after re-registering the driver, then
//     returned as a *PoolError.
//  2. Eviction fails: logged, the monitor keeps running.
//  3. Cache eviction flush fails: logged and swallowed, the statement is
//     still closed.
package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maachang/origin-sub000/internal/clock"
	"github.com/maachang/origin-sub000/internal/dbinterface"
	"github.com/maachang/origin-sub000/internal/dialect"
	"github.com/maachang/origin-sub000/internal/sequence"
	"github.com/maachang/origin-sub000/pkg/redact"
)

const (
	MaxFetchSize     = 100
	DefaultBatchSize = 100
	MaxBatchSize     = 999
)

// ClampFetchSize caps n at MaxFetchSize; non-positive means MaxFetchSize.
func ClampFetchSize(n int) int {
	if n <= 0 || n > MaxFetchSize {
		return MaxFetchSize
	}
	return n
}

// ClampBatchSize returns DefaultBatchSize for values outside (0, MaxBatchSize).
func ClampBatchSize(n int) int {
	if n <= 0 || n >= MaxBatchSize {
		return DefaultBatchSize
	}
	return n
}

// Options configures a Registry.
type Options struct {
	// Dialects resolves dialect names; nil means dialect.Builtin().
	Dialects *dialect.Table
	// DefaultDialect applies to pools registered without one; nil means
	// sqlite.
	DefaultDialect *dialect.Descriptor
	// Sequence is handed to callers through Registry.Sequence.
	Sequence  *sequence.Generator
	FetchSize int
	BatchSize int
	// DefaultPool is used when GetConnection receives an empty name.
	DefaultPool string

	// Connector opens physical handles; nil means SQLConnector.
	Connector dbinterface.Connector
	// Clock drives idle stamps and monitor sleeps; nil means clock.Real().
	Clock          clock.Clock
	StepDelay      time.Duration
	IdleDelay      time.Duration
	DisableMonitor bool
}

// Registry maps pool names to pools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool

	dialects       *dialect.Table
	defaultDialect *dialect.Descriptor
	sequence       *sequence.Generator
	fetchSize      int
	batchSize      int
	defaultPool    string

	connector dbinterface.Connector
	clock     clock.Clock
	monitor   *Monitor

	destroyed   bool
	destroyOnce sync.Once
}

// New builds a registry and, unless disabled, starts its monitor.
func New(opts Options) *Registry {
	r := &Registry{
		pools:          make(map[string]*Pool),
		dialects:       opts.Dialects,
		defaultDialect: opts.DefaultDialect,
		sequence:       opts.Sequence,
		fetchSize:      ClampFetchSize(opts.FetchSize),
		batchSize:      ClampBatchSize(opts.BatchSize),
		defaultPool:    poolKey(opts.DefaultPool),
		connector:      opts.Connector,
		clock:          opts.Clock,
	}
	if r.dialects == nil {
		r.dialects = dialect.Builtin()
	}
	if r.defaultDialect == nil {
		r.defaultDialect = dialect.SQLite
	}
	if r.connector == nil {
		r.connector = SQLConnector{}
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	r.monitor = NewMonitor(r.clock, opts.StepDelay, opts.IdleDelay)
	if !opts.DisableMonitor {
		r.monitor.Start()
	}

	log.Debug().
		Str("dialect", r.defaultDialect.Name).
		Int("fetchSize", r.fetchSize).
		Int("batchSize", r.batchSize).
		Str("defaultPool", r.defaultPool).
		Msg("database registry initialized")
	return r
}

// poolKey folds a pool name to its registry key. Names are
// case-insensitive, matching config keys.
func poolKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a pool. A nil dialect takes the registry default.
func (r *Registry) Register(cfg PoolConfig) error {
	cfg.Name = poolKey(cfg.Name)
	if cfg.Name == "" {
		return &PoolError{Op: "register", Err: ErrInvalidPoolName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return &PoolError{Pool: cfg.Name, Op: "register", Err: ErrRegistryDestroyed}
	}
	if _, exists := r.pools[cfg.Name]; exists {
		return &PoolError{Pool: cfg.Name, Op: "register", Err: ErrPoolExists}
	}
	if cfg.Dialect == nil {
		cfg.Dialect = r.defaultDialectLocked()
	}
	cfg.URL = cfg.Dialect.WithDriverParams(cfg.Dialect.CheckURL(cfg.URL))

	p, err := newPool(cfg, r.connectorOrDefault(), r.clockOrDefault(), r.monitor)
	if err != nil {
		return &PoolError{Pool: cfg.Name, Op: "register", Err: err}
	}
	if r.pools == nil {
		r.pools = make(map[string]*Pool)
	}
	r.pools[cfg.Name] = p
	if r.monitor != nil {
		r.monitor.Add(p)
	}

	log.Info().
		Str("pool", cfg.Name).
		Str("dialect", cfg.Dialect.Name).
		Str("url", redact.DSN(p.url)).
		Int("maxSize", p.maxSize).
		Dur("timeout", p.timeout).
		Msg("registered database pool")
	return nil
}

// RegisterByName resolves dialectName through the registry's table and
// registers the pool. An empty name takes the default dialect.
func (r *Registry) RegisterByName(dialectName string, cfg PoolConfig) error {
	if strings.TrimSpace(dialectName) != "" {
		d, ok := r.LookupDialect(dialectName)
		if !ok {
			return &PoolError{Pool: cfg.Name, Op: "register", Err: ErrUnknownDialect}
		}
		cfg.Dialect = d
	}
	return r.Register(cfg)
}

// LookupDialect resolves a dialect name case-insensitively.
func (r *Registry) LookupDialect(name string) (*dialect.Descriptor, bool) {
	if r.dialects == nil {
		return dialect.Builtin().Lookup(name)
	}
	return r.dialects.Lookup(name)
}

// GetConnection checks a session out of the named pool. An empty name
// selects the default pool.
func (r *Registry) GetConnection(ctx context.Context, name string) (*Session, error) {
	p, err := r.pool(name)
	if err != nil {
		return nil, err
	}
	pc, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}
	return newSession(pc, p.dialect, sessionOptions{
		fetchSize: r.fetchSize,
		batchSize: r.batchSize,
		pooled:    true,
	}), nil
}

// Open returns a session on a standalone physical handle. Closing it closes
// the handle. Read-only sessions refuse writers and ad-hoc statements.
func (r *Registry) Open(ctx context.Context, readOnly bool, d *dialect.Descriptor, url, user, password string) (*Session, error) {
	if r.isDestroyed() {
		return nil, &PoolError{Op: "open", Err: ErrRegistryDestroyed}
	}
	if d == nil {
		d = r.DefaultDialect()
	}
	url = d.WithDriverParams(d.CheckURL(url))
	dsn, err := d.DSN(url, user, password)
	if err != nil {
		return nil, &PoolError{Op: "open", Err: err}
	}
	conn, err := dial(ctx, r.connectorOrDefault(), d, dbinterface.Target{
		Driver: d.Driver,
		DSN:    dsn,
		Begin:  d.BeginStatements(),
	})
	if err != nil {
		return nil, &PoolError{Op: "open", Err: err}
	}
	pc := newPooledConn(conn, nil, r.clockOrDefault())
	return newSession(pc, d, sessionOptions{
		fetchSize: r.FetchSize(),
		batchSize: r.BatchSize(),
		readOnly:  readOnly,
	}), nil
}

func (r *Registry) pool(name string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.destroyed {
		return nil, &PoolError{Pool: name, Op: "get", Err: ErrRegistryDestroyed}
	}
	if strings.TrimSpace(name) == "" {
		name = r.defaultPool
	}
	p, ok := r.pools[poolKey(name)]
	if !ok {
		return nil, &PoolError{Pool: name, Op: "get", Err: ErrUnknownPool}
	}
	return p, nil
}

// Release destroys one pool. Unknown names are ignored.
func (r *Registry) Release(name string) {
	name = poolKey(name)
	r.mu.Lock()
	p, ok := r.pools[name]
	if ok {
		delete(r.pools, name)
	}
	r.mu.Unlock()

	if ok {
		p.destroy()
		log.Info().Str("pool", name).Msg("released database pool")
	}
}

// Destroy stops the monitor and destroys every pool. It is idempotent and
// safe on a zero Registry.
func (r *Registry) Destroy() {
	r.destroyOnce.Do(func() {
		r.mu.Lock()
		r.destroyed = true
		pools := r.pools
		r.pools = nil
		r.mu.Unlock()

		if r.monitor != nil {
			r.monitor.Stop()
		}
		for _, p := range pools {
			p.destroy()
		}
		log.Info().Int("pools", len(pools)).Msg("database registry destroyed")
	})
}

func (r *Registry) isDestroyed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destroyed
}

// Names returns the registered pool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pools[poolKey(name)]
	return ok
}

// Len returns the number of registered pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// Dialect returns the dialect of the named pool.
func (r *Registry) Dialect(name string) (*dialect.Descriptor, bool) {
	p, err := r.pool(name)
	if err != nil {
		return nil, false
	}
	return p.dialect, true
}

// Stats snapshots every pool, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	stats := make([]Stats, 0, len(r.pools))
	for _, p := range r.pools {
		stats = append(stats, p.Stats())
	}
	r.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Monitor exposes the registry's sweeper, mainly for Sweep in tools and
// tests.
func (r *Registry) Monitor() *Monitor { return r.monitor }

func (r *Registry) DefaultDialect() *dialect.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultDialectLocked()
}

func (r *Registry) defaultDialectLocked() *dialect.Descriptor {
	if r.defaultDialect == nil {
		return dialect.SQLite
	}
	return r.defaultDialect
}

func (r *Registry) DefaultPool() string { return r.defaultPool }

func (r *Registry) FetchSize() int { return ClampFetchSize(r.fetchSize) }

func (r *Registry) BatchSize() int { return ClampBatchSize(r.batchSize) }

func (r *Registry) Sequence() *sequence.Generator { return r.sequence }

func (r *Registry) connectorOrDefault() dbinterface.Connector {
	if r.connector == nil {
		return SQLConnector{}
	}
	return r.connector
}

func (r *Registry) clockOrDefault() clock.Clock {
	if r.clock == nil {
		return clock.Real()
	}
	return r.clock
}
