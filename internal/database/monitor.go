// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maachang/origin-sub000/internal/clock"
)

const (
	DefaultStepDelay = 50 * time.Millisecond
	DefaultIdleDelay = 100 * time.Millisecond
)

// Monitor is the single background sweeper shared by every pool of a
// registry. Each pass visits the registered pools in registration order,
// sleeping StepDelay before each one and IdleDelay after the pass, and
// evicts idle handles past their pool's timeout. Failures while visiting
// one pool are logged and never stop the loop.
type Monitor struct {
	mu    sync.Mutex
	pools []*Pool

	clock     clock.Clock
	stepDelay time.Duration
	idleDelay time.Duration

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewMonitor returns a stopped monitor. Non-positive delays take the
// defaults.
func NewMonitor(clk clock.Clock, stepDelay, idleDelay time.Duration) *Monitor {
	if clk == nil {
		clk = clock.Real()
	}
	if stepDelay <= 0 {
		stepDelay = DefaultStepDelay
	}
	if idleDelay <= 0 {
		idleDelay = DefaultIdleDelay
	}
	return &Monitor{
		clock:     clk,
		stepDelay: stepDelay,
		idleDelay: idleDelay,
		done:      make(chan struct{}),
	}
}

// Add registers p for sweeping.
func (m *Monitor) Add(p *Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.pools, p) {
		m.pools = append(m.pools, p)
	}
}

// Remove deregisters p.
func (m *Monitor) Remove(p *Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools = slices.DeleteFunc(m.pools, func(q *Pool) bool { return q == p })
}

// Len returns the number of registered pools.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}

func (m *Monitor) snapshot() []*Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.pools)
}

// Start launches the sweep goroutine once.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		go func() {
			defer close(m.done)
			m.Run(ctx)
		}()
		log.Debug().Dur("step", m.stepDelay).Dur("idle", m.idleDelay).Msg("pool monitor started")
	})
}

// Stop cancels the sweep goroutine and waits for it. Stop on a monitor that
// was never started returns immediately.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		started := false
		m.startOnce.Do(func() {})
		if m.cancel != nil {
			started = true
			m.cancel()
		}
		if started {
			<-m.done
		}
		log.Debug().Msg("pool monitor stopped")
	})
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	for {
		for _, p := range m.snapshot() {
			if !m.sleep(ctx, m.stepDelay) {
				return
			}
			m.visit(p)
		}
		if !m.sleep(ctx, m.idleDelay) {
			return
		}
	}
}

// Sweep runs one pass over every pool without sleeping and returns how
// many handles were evicted.
func (m *Monitor) Sweep() int {
	evicted := 0
	for _, p := range m.snapshot() {
		evicted += m.visit(p)
	}
	return evicted
}

func (m *Monitor) visit(p *Pool) (evicted int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("pool", p.name).Msg("recovered in pool monitor")
		}
	}()
	if p.IsDestroyed() {
		m.Remove(p)
		return 0
	}
	return p.evictIdle(m.clock.Now())
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(d):
		return ctx.Err() == nil
	}
}
