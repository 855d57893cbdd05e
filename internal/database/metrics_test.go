// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_Describe(t *testing.T) {
	c := NewMetricsCollector(nil)

	ch := make(chan *prometheus.Desc, 10)
	c.Describe(ch)
	close(ch)

	var descs []*prometheus.Desc
	for d := range ch {
		descs = append(descs, d)
	}
	assert.Len(t, descs, 7)
}

func TestMetricsCollector_NilRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewMetricsCollector(nil))
	assert.Equal(t, 0, testutil.CollectAndCount(registry))
}

func TestMetricsCollector_PoolStats(t *testing.T) {
	r, _, _ := newTestRegistry(t, 2, time.Minute)
	for range 3 {
		s := mustSession(t, r, "main")
		defer s.Close()
	}

	c := NewMetricsCollector(r)
	assert.Equal(t, 7, testutil.CollectAndCount(c))

	expected := `
# HELP origin_pool_connections_created_total Physical connections opened by the pool
# TYPE origin_pool_connections_created_total counter
origin_pool_connections_created_total{dialect="sqlite",pool="main"} 3
# HELP origin_pool_max_size Maximum number of idle physical connections the pool keeps
# TYPE origin_pool_max_size gauge
origin_pool_max_size{dialect="sqlite",pool="main"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"origin_pool_connections_created_total", "origin_pool_max_size"))
}
