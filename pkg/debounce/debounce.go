// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package debounce coalesces bursts of calls into one trailing call.
package debounce

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/maachang/origin-sub000/internal/clock"
)

// Debouncer runs the last function submitted within a delay window, once
// the window closes. The window opens on the first submission after an
// idle period.
type Debouncer struct {
	clock       clock.Clock
	delay       time.Duration
	submissions chan func()

	mu     sync.Mutex
	timer  <-chan time.Time
	latest func()

	submitMu sync.Mutex
	stopped  atomic.Bool
	done     chan struct{}
}

// New starts a debouncer. A nil clock means clock.Real().
func New(delay time.Duration, clk clock.Clock) *Debouncer {
	if clk == nil {
		clk = clock.Real()
	}
	d := &Debouncer{
		clock:       clk,
		delay:       delay,
		submissions: make(chan func(), 64),
		done:        make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Debouncer) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		timer := d.timer
		d.mu.Unlock()

		select {
		case <-timer:
			d.fire()
		case fn, ok := <-d.submissions:
			if !ok {
				d.fire()
				return
			}
			d.mu.Lock()
			d.latest = fn
			if d.timer == nil {
				d.timer = d.clock.After(d.delay)
			}
			d.mu.Unlock()
		}
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.latest
	d.latest = nil
	d.timer = nil
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Do schedules fn, replacing any function still waiting in the current
// window. After Stop, fn runs synchronously.
func (d *Debouncer) Do(fn func()) {
	d.submitMu.Lock()
	if d.stopped.Load() {
		d.submitMu.Unlock()
		fn()
		return
	}
	select {
	case d.submissions <- fn:
	default:
		// buffer full: a newer submission is already queued behind it
	}
	d.submitMu.Unlock()
}

// Pending reports whether a window is open.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop runs the waiting function, if any, and ends the goroutine.
func (d *Debouncer) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	d.submitMu.Lock()
	close(d.submissions)
	d.submitMu.Unlock()
	<-d.done
}
