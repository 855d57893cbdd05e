// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

type MetricsCollector struct {
	registry *Registry

	idleDesc      *prometheus.Desc
	maxSizeDesc   *prometheus.Desc
	createdDesc   *prometheus.Desc
	reusedDesc    *prometheus.Desc
	destroyedDesc *prometheus.Desc
	evictedDesc   *prometheus.Desc
	checkoutsDesc *prometheus.Desc
}

func NewMetricsCollector(r *Registry) *MetricsCollector {
	labels := []string{"pool", "dialect"}
	return &MetricsCollector{
		registry: r,
		idleDesc: prometheus.NewDesc(
			"origin_pool_idle_connections",
			"Number of idle physical connections held by the pool",
			labels, nil,
		),
		maxSizeDesc: prometheus.NewDesc(
			"origin_pool_max_size",
			"Maximum number of idle physical connections the pool keeps",
			labels, nil,
		),
		createdDesc: prometheus.NewDesc(
			"origin_pool_connections_created_total",
			"Physical connections opened by the pool",
			labels, nil,
		),
		reusedDesc: prometheus.NewDesc(
			"origin_pool_connections_reused_total",
			"Checkouts served from the idle queue",
			labels, nil,
		),
		destroyedDesc: prometheus.NewDesc(
			"origin_pool_connections_destroyed_total",
			"Physical connections closed by the pool",
			labels, nil,
		),
		evictedDesc: prometheus.NewDesc(
			"origin_pool_connections_evicted_total",
			"Idle connections closed by the monitor after the pool timeout",
			labels, nil,
		),
		checkoutsDesc: prometheus.NewDesc(
			"origin_pool_checkouts_total",
			"Sessions checked out of the pool",
			labels, nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.idleDesc
	ch <- c.maxSizeDesc
	ch <- c.createdDesc
	ch <- c.reusedDesc
	ch <- c.destroyedDesc
	ch <- c.evictedDesc
	ch <- c.checkoutsDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.registry == nil {
		return
	}
	for _, s := range c.registry.Stats() {
		ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(s.Idle), s.Name, s.Dialect)
		ch <- prometheus.MustNewConstMetric(c.maxSizeDesc, prometheus.GaugeValue, float64(s.MaxSize), s.Name, s.Dialect)
		ch <- prometheus.MustNewConstMetric(c.createdDesc, prometheus.CounterValue, float64(s.Created), s.Name, s.Dialect)
		ch <- prometheus.MustNewConstMetric(c.reusedDesc, prometheus.CounterValue, float64(s.Reused), s.Name, s.Dialect)
		ch <- prometheus.MustNewConstMetric(c.destroyedDesc, prometheus.CounterValue, float64(s.Destroyed), s.Name, s.Dialect)
		ch <- prometheus.MustNewConstMetric(c.evictedDesc, prometheus.CounterValue, float64(s.Evicted), s.Name, s.Dialect)
		ch <- prometheus.MustNewConstMetric(c.checkoutsDesc, prometheus.CounterValue, float64(s.Checkouts), s.Name, s.Dialect)
	}
}
