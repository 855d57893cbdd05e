// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logstream

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_Wraps(t *testing.T) {
	r := NewRing(3)
	for i := range 5 {
		r.Write(fmt.Sprintf("line%d", i))
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"line2", "line3", "line4"}, r.Lines(0))
	assert.Equal(t, []string{"line3", "line4"}, r.Lines(2))
	assert.Equal(t, []string{"line2", "line3", "line4"}, r.Lines(10))
}

func TestRing_Empty(t *testing.T) {
	r := NewRing(0)
	assert.Equal(t, DefaultRingSize, r.Cap())
	assert.Nil(t, r.Lines(5))
	assert.Equal(t, 0, r.Len())
}

func TestRing_ConcurrentWrite(t *testing.T) {
	r := NewRing(2000)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 100 {
				r.Write("line")
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1000, r.Len())
}
