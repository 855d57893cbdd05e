// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package logstream keeps the process log output switchable at runtime and
// remembers the most recent lines for the diagnostics endpoint.
package logstream

import "sync"

// DefaultRingSize is the number of lines a Ring keeps when no size is given.
const DefaultRingSize = 500

// Sink receives complete log lines without their trailing newline.
type Sink interface {
	Write(line string)
}

// Ring is a fixed-size buffer of the most recent log lines.
type Ring struct {
	mu       sync.RWMutex
	lines    []string
	writePos int
	count    int
}

// NewRing returns a Ring holding up to size lines. size <= 0 means
// DefaultRingSize.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{lines: make([]string, size)}
}

func (r *Ring) Write(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.writePos] = line
	r.writePos = (r.writePos + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Lines returns the last n lines, oldest first. n <= 0 returns all of them.
func (r *Ring) Lines(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	if n == 0 {
		return nil
	}

	size := len(r.lines)
	out := make([]string, n)
	start := (r.writePos - n + size) % size
	for i := range n {
		out[i] = r.lines[(start+i)%size]
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Ring) Cap() int { return len(r.lines) }
