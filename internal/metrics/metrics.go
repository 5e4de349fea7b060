// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes Prometheus instrumentation for the search and
// resolution paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements the stats hooks of the resolver cache and the search
// service against one Prometheus registry.
type Metrics struct {
	resolveCacheHits prometheus.Counter
	resolveOutcomes  *prometheus.CounterVec
	searchCacheHits  prometheus.Counter
	searchesTotal    prometheus.Counter
	searchResults    prometheus.Histogram
	downloadsTotal   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		resolveCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "fetcharr_resolve_cache_hits_total",
			Help: "Total number of magnet resolutions served from cache",
		}),
		resolveOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fetcharr_resolve_outcomes_total",
			Help: "Total number of settled magnet resolutions by outcome",
		}, []string{"outcome"}),
		searchCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "fetcharr_search_cache_hits_total",
			Help: "Total number of searches served from cache",
		}),
		searchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fetcharr_searches_total",
			Help: "Total number of searches sent to the broker",
		}),
		searchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fetcharr_search_results",
			Help:    "Result counts per search after dedup and capping",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200, 300},
		}),
		downloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fetcharr_downloads_total",
			Help: "Total number of download hand-offs by status",
		}, []string{"status"}),
	}
}

// CacheHit satisfies the resolver cache stats hook.
func (m *Metrics) CacheHit() {
	m.resolveCacheHits.Inc()
}

// ResolveOutcome satisfies the resolver cache stats hook.
func (m *Metrics) ResolveOutcome(outcome string) {
	m.resolveOutcomes.WithLabelValues(outcome).Inc()
}

// SearchCacheHit satisfies the search service stats hook.
func (m *Metrics) SearchCacheHit() {
	m.searchCacheHits.Inc()
}

// SearchCompleted satisfies the search service stats hook.
func (m *Metrics) SearchCompleted(results int) {
	m.searchesTotal.Inc()
	m.searchResults.Observe(float64(results))
}

// DownloadHandoff records one download submission.
func (m *Metrics) DownloadHandoff(status string) {
	m.downloadsTotal.WithLabelValues(status).Inc()
}
