package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the filesystem instrumentation. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ArchiveParses          prometheus.Counter
	ArchiveParseErrors     prometheus.Counter
	ArchiveParseDuration   prometheus.Histogram
	Decompiles             prometheus.Counter
	DecompileErrors        prometheus.Counter
	DecompileCancellations prometheus.Counter
	DecompileDuration      prometheus.Histogram
	ContentStoreHits       prometheus.Counter
	Invalidations          prometheus.Counter
	Refreshes              prometheus.Counter
	CachedHandlers         prometheus.Gauge
	CachedNodes            prometheus.Gauge
	Mounts                 *prometheus.GaugeVec
}

// New creates and registers filesystem metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ArchiveParses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "archive",
			Name:      "parses_total",
			Help:      "Archives parsed into a handler.",
		}),
		ArchiveParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "archive",
			Name:      "parse_errors_total",
			Help:      "Archives that failed to parse.",
		}),
		ArchiveParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classfs",
			Subsystem: "archive",
			Name:      "parse_duration_seconds",
			Help:      "Duration of archive parsing including symbol extraction.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Decompiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "decompiler",
			Name:      "decompiles_total",
			Help:      "Symbols handed to the decompiler.",
		}),
		DecompileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "decompiler",
			Name:      "errors_total",
			Help:      "Decompiles that failed.",
		}),
		DecompileCancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "decompiler",
			Name:      "cancellations_total",
			Help:      "Decompiles abandoned because the caller cancelled.",
		}),
		DecompileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classfs",
			Subsystem: "decompiler",
			Name:      "duration_seconds",
			Help:      "Duration of a single symbol decompile.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ContentStoreHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "store",
			Name:      "hits_total",
			Help:      "Decompiled sources served from the content store.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "vfs",
			Name:      "invalidations_total",
			Help:      "Archive handlers evicted by invalidation.",
		}),
		Refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classfs",
			Subsystem: "vfs",
			Name:      "refreshes_total",
			Help:      "Full cache resets.",
		}),
		CachedHandlers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classfs",
			Subsystem: "vfs",
			Name:      "cached_handlers",
			Help:      "Archive handlers currently cached.",
		}),
		CachedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classfs",
			Subsystem: "vfs",
			Name:      "cached_nodes",
			Help:      "Virtual nodes currently cached.",
		}),
		Mounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "classfs",
			Name:      "mount_info",
			Help:      "Mounted archives, one series per mount name.",
		}, []string{"archive"}),
	}

	reg.MustRegister(
		m.ArchiveParses,
		m.ArchiveParseErrors,
		m.ArchiveParseDuration,
		m.Decompiles,
		m.DecompileErrors,
		m.DecompileCancellations,
		m.DecompileDuration,
		m.ContentStoreHits,
		m.Invalidations,
		m.Refreshes,
		m.CachedHandlers,
		m.CachedNodes,
		m.Mounts,
	)

	return m
}

// ObserveParse records one archive parse attempt.
func (m *Metrics) ObserveParse(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ArchiveParses.Inc()
	m.ArchiveParseDuration.Observe(d.Seconds())
	if err != nil {
		m.ArchiveParseErrors.Inc()
	}
}

// ObserveDecompile records one decompile attempt.
func (m *Metrics) ObserveDecompile(d time.Duration, err error, cancelled bool) {
	if m == nil {
		return
	}
	m.Decompiles.Inc()
	m.DecompileDuration.Observe(d.Seconds())
	switch {
	case cancelled:
		m.DecompileCancellations.Inc()
	case err != nil:
		m.DecompileErrors.Inc()
	}
}

// StoreHit records a content store hit.
func (m *Metrics) StoreHit() {
	if m == nil {
		return
	}
	m.ContentStoreHits.Inc()
}

// Invalidated records a targeted invalidation.
func (m *Metrics) Invalidated() {
	if m == nil {
		return
	}
	m.Invalidations.Inc()
}

// Refreshed records a full reset.
func (m *Metrics) Refreshed() {
	if m == nil {
		return
	}
	m.Refreshes.Inc()
}

// SetCacheSizes publishes the cache gauges.
func (m *Metrics) SetCacheSizes(handlers, nodes int) {
	if m == nil {
		return
	}
	m.CachedHandlers.Set(float64(handlers))
	m.CachedNodes.Set(float64(nodes))
}

// SetMounts publishes the mount names, dropping names no longer mounted.
func (m *Metrics) SetMounts(names []string) {
	if m == nil {
		return
	}
	m.Mounts.Reset()
	for _, n := range names {
		m.Mounts.WithLabelValues(n).Set(1)
	}
}
