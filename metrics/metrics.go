package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the resolution pipeline.
type Metrics struct {
	Resolutions        *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	OrphanFetches      *prometheus.CounterVec
	SyntheticMembers   prometheus.Gauge
	CacheLookups       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtla_resolutions_total",
			Help: "Delegation resolution runs by outcome",
		}, []string{"outcome"}),
		ResolutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mtla_resolution_duration_seconds",
			Help:    "Time spent resolving the delegation forest",
			Buckets: prometheus.DefBuckets,
		}),
		OrphanFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtla_orphan_fetches_total",
			Help: "Lookups of delegation targets missing from the registry",
		}, []string{"result"}),
		SyntheticMembers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtla_synthetic_members",
			Help: "Members added by the last orphan resolution",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtla_source_cache_lookups_total",
			Help: "Member source cache lookups by kind and result",
		}, []string{"kind", "result"}),
	}
}

// ObserveResolution records one resolution run.
func (m *Metrics) ObserveResolution(outcome string, d time.Duration) {
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.ResolutionDuration.Observe(d.Seconds())
}

// ObserveOrphanFetch records one orphan lookup.
func (m *Metrics) ObserveOrphanFetch(result string) {
	m.OrphanFetches.WithLabelValues(result).Inc()
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}
