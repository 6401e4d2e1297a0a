// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package metrics exposes the subscriber's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by the subscriber loop.
type Metrics struct {
	Received  prometheus.Counter
	Dropped   *prometheus.CounterVec
	Evicted   prometheus.Counter
	Average   prometheus.Gauge
	Live      prometheus.Gauge
	Cycles    prometheus.Counter
	CycleTime prometheus.Histogram
}

const namespace = "tempmesh"

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_received_total",
			Help:      "Readings decoded and stored.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dropped_total",
			Help:      "Payloads dropped because they failed to decode.",
		}, []string{"reason"}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishers_evicted_total",
			Help:      "Publishers removed for being stale.",
		}),
		Average: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_temperature_celsius",
			Help:      "Mean temperature across live publishers.",
		}),
		Live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publishers_live",
			Help:      "Publishers counted in the last average.",
		}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles completed.",
		}),
		CycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in one poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Received,
			m.Dropped,
			m.Evicted,
			m.Average,
			m.Live,
			m.Cycles,
			m.CycleTime,
		)
	}
	return m
}

// ObserveAverage records the outcome of an averaging pass. The average gauge
// keeps its last value when no publisher is live.
func (m *Metrics) ObserveAverage(mean float32, ok bool, live, evicted int) {
	m.Live.Set(float64(live))
	m.Evicted.Add(float64(evicted))
	if ok {
		m.Average.Set(float64(mean))
	}
}
