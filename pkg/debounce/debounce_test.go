// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maachang/origin-sub000/internal/clock"
)

const delay = 100 * time.Millisecond

func waitFor(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("debounced function did not run")
		return 0
	}
}

func TestDebouncer_RunsLastSubmission(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	d := New(delay, clk)
	defer d.Stop()

	ran := make(chan int, 5)
	var calls atomic.Int32
	for i := range 5 {
		d.Do(func() {
			calls.Add(1)
			ran <- i
		})
	}
	clk.WaitForTimers(1)
	require.Eventually(t, func() bool { return len(d.submissions) == 0 }, time.Second, time.Millisecond)
	assert.True(t, d.Pending())

	clk.Advance(delay)
	assert.Equal(t, 4, waitFor(t, ran))
	require.Eventually(t, func() bool { return !d.Pending() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_NewWindowAfterFire(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	d := New(delay, clk)
	defer d.Stop()

	ran := make(chan int, 2)
	d.Do(func() { ran <- 1 })
	clk.WaitForTimers(1)
	clk.Advance(delay)
	assert.Equal(t, 1, waitFor(t, ran))

	d.Do(func() { ran <- 2 })
	clk.WaitForTimers(1)
	clk.Advance(delay)
	assert.Equal(t, 2, waitFor(t, ran))
}

func TestDebouncer_StopFlushesPending(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	d := New(delay, clk)

	ran := make(chan int, 2)
	d.Do(func() { ran <- 1 })
	clk.WaitForTimers(1)

	d.Stop()
	assert.Equal(t, 1, waitFor(t, ran))

	d.Do(func() { ran <- 2 })
	assert.Equal(t, 2, waitFor(t, ran), "after Stop functions run inline")
	d.Stop()
}

func TestDebouncer_RealClock(t *testing.T) {
	d := New(10*time.Millisecond, nil)
	defer d.Stop()

	ran := make(chan int, 1)
	d.Do(func() { ran <- 7 })
	assert.Equal(t, 7, waitFor(t, ran))
}
