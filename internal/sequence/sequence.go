// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sequence issues time-ordered 16 byte identifiers.
//
// Layout, big-endian:
//
//	bytes 0-7   unix milliseconds
//	bytes 8-11  per-millisecond counter
//	bytes 12-15 machine id
//
// The text form is the UUID layout of the same 16 bytes, so IDs sort the
// same way as text and as binary.
package sequence

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maachang/origin-sub000/internal/clock"
)

// ID is one issued identifier.
type ID [16]byte

func newID(ms int64, seq, machineID uint32) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint32(id[8:12], seq)
	binary.BigEndian.PutUint32(id[12:16], machineID)
	return id
}

func (id ID) Millis() int64 { return int64(binary.BigEndian.Uint64(id[0:8])) }

func (id ID) Time() time.Time { return time.UnixMilli(id.Millis()) }

func (id ID) Sequence() uint32 { return binary.BigEndian.Uint32(id[8:12]) }

func (id ID) MachineID() uint32 { return binary.BigEndian.Uint32(id[12:16]) }

func (id ID) Bytes() []byte { return id[:] }

// String returns the 36 character UUID form.
func (id ID) String() string { return uuid.UUID(id).String() }

func (id ID) IsZero() bool { return id == ID{} }

// Parse reads the UUID form produced by String.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse sequence id %q: %w", s, err)
	}
	return ID(u), nil
}

// FromBytes reads the binary form.
func FromBytes(b []byte) (ID, error) {
	if len(b) != 16 {
		return ID{}, fmt.Errorf("sequence id must be 16 bytes, got %d", len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// Generator issues IDs for one machine. It is safe for concurrent use.
// IDs never go backwards: when the wall clock steps back, or the counter
// of one millisecond runs out, the generator keeps counting on the last
// millisecond it issued.
type Generator struct {
	mu        sync.Mutex
	clock     clock.Clock
	machineID uint32
	lastMs    int64
	seq       uint32
	issued    bool
}

// New returns a generator for machineID. A nil clock means clock.Real().
func New(machineID uint32, clk clock.Clock) *Generator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Generator{clock: clk, machineID: machineID}
}

// Resume returns a generator that continues after last.
func Resume(last ID, clk clock.Clock) *Generator {
	g := New(last.MachineID(), clk)
	g.Set(last)
	return g
}

func (g *Generator) MachineID() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.machineID
}

// Next issues a new ID.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock.Now().UnixMilli()
	switch {
	case !g.issued || ms > g.lastMs:
		g.lastMs = ms
		g.seq = 0
	case g.seq == math.MaxUint32:
		g.lastMs++
		g.seq = 0
	default:
		g.seq++
	}
	g.issued = true
	return newID(g.lastMs, g.seq, g.machineID)
}

// Current returns the last issued ID without issuing a new one.
func (g *Generator) Current() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return newID(g.lastMs, g.seq, g.machineID)
}

// Set makes id the last issued ID, adopting its machine id.
func (g *Generator) Set(id ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastMs = id.Millis()
	g.seq = id.Sequence()
	g.machineID = id.MachineID()
	g.issued = true
}
