// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sequence

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maachang/origin-sub000/internal/clock"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGenerator_Layout(t *testing.T) {
	clk := clock.Fake(epoch)
	g := New(0xA1B2C3D4, clk)

	id := g.Next()
	assert.Equal(t, epoch.UnixMilli(), id.Millis())
	assert.Equal(t, uint32(0), id.Sequence())
	assert.Equal(t, uint32(0xA1B2C3D4), id.MachineID())
	assert.Equal(t, []byte{0xA1, 0xB2, 0xC3, 0xD4}, id.Bytes()[12:])
	assert.True(t, id.Time().Equal(epoch))
}

func TestGenerator_CounterWithinMillisecond(t *testing.T) {
	clk := clock.Fake(epoch)
	g := New(1, clk)

	a := g.Next()
	b := g.Next()
	assert.Equal(t, uint32(1), b.Sequence())
	assert.Equal(t, a.Millis(), b.Millis())
	assert.Equal(t, b, g.Current())

	clk.Advance(time.Millisecond)
	c := g.Next()
	assert.Equal(t, uint32(0), c.Sequence())
	assert.Equal(t, a.Millis()+1, c.Millis())
}

func TestGenerator_NeverGoesBackwards(t *testing.T) {
	clk := clock.Fake(epoch)
	g := New(1, clk)
	g.Set(newID(epoch.UnixMilli()+5000, 7, 9))

	id := g.Next()
	assert.Equal(t, epoch.UnixMilli()+5000, id.Millis())
	assert.Equal(t, uint32(8), id.Sequence())
	assert.Equal(t, uint32(9), id.MachineID(), "Set adopts the machine id")

	g.Set(newID(epoch.UnixMilli(), math.MaxUint32, 9))
	id = g.Next()
	assert.Equal(t, epoch.UnixMilli()+1, id.Millis())
	assert.Equal(t, uint32(0), id.Sequence())
}

func TestGenerator_ConcurrentIDsAreUniqueAndOrdered(t *testing.T) {
	g := New(3, nil)

	const workers, each = 8, 500
	results := make([][]ID, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				results[w] = append(results[w], g.Next())
			}
		}()
	}
	wg.Wait()

	seen := make(map[ID]struct{}, workers*each)
	for _, ids := range results {
		for i, id := range ids {
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %s", id)
			seen[id] = struct{}{}
			if i > 0 {
				assert.Equal(t, 1, bytes.Compare(id[:], ids[i-1][:]), "ids from one goroutine increase")
			}
		}
	}
}

func TestID_StringRoundTrip(t *testing.T) {
	id := newID(0x0123456789ABCDEF, 0x11223344, 0x55667788)
	s := id.String()
	assert.Equal(t, "01234567-89ab-cdef-1122-334455667788", s)

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = Parse("not-a-uuid")
	assert.Error(t, err)

	fromBytes, err := FromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, fromBytes)
	_, err = FromBytes([]byte{1, 2})
	assert.Error(t, err)
}

func TestResume(t *testing.T) {
	last := newID(epoch.UnixMilli(), 41, 77)
	g := Resume(last, clock.Fake(epoch))

	assert.Equal(t, uint32(77), g.MachineID())
	assert.Equal(t, last, g.Current())
	assert.Equal(t, uint32(42), g.Next().Sequence())
	assert.False(t, last.IsZero())
	assert.True(t, ID{}.IsZero())
}

func TestResolveMachineID(t *testing.T) {
	assert.Equal(t, uint32(12), ResolveMachineID(12, "origin", t.TempDir()))

	dir := t.TempDir()
	first := ResolveMachineID(0, "origin", dir)
	second := ResolveMachineID(0, "origin", dir)
	assert.Equal(t, first, second)

	content, err := os.ReadFile(filepath.Join(dir, fingerprintFile))
	require.NoError(t, err)
	assert.Len(t, string(content), 64)
}

func TestFingerprint_UsesPersistedValue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fingerprintFile), []byte("  fixed-fingerprint\n"), 0o644))

	assert.Equal(t, "fixed-fingerprint", Fingerprint("origin", dir))
}
