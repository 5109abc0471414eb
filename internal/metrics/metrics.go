// Package metrics holds the Prometheus counters of candidate scans.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons recorded by the candidate iterators.
const (
	ReasonUnregistered = "unregistered"
	ReasonNotDue       = "not_due"
	ReasonError        = "error"
)

var scanMetricsOnce sync.Once

var scanMetricsInstance *ScanMetrics

// ScanMetrics counts what candidate iterators see. A nil *ScanMetrics records nothing.
type ScanMetrics struct {
	Scanned       *prometheus.CounterVec // zpreserve_candidates_scanned_total{strategy}
	Yielded       *prometheus.CounterVec // zpreserve_candidates_yielded_total{strategy}
	Skipped       *prometheus.CounterVec // zpreserve_candidates_skipped_total{strategy,reason}
	IndexPages    *prometheus.CounterVec // zpreserve_index_pages_total{query}
	IndexRemovals prometheus.Counter
}

// NewScanMetrics registers a fresh set of scan metrics with registry.
func NewScanMetrics(registry prometheus.Registerer) *ScanMetrics {
	return &ScanMetrics{
		Scanned: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "zpreserve_candidates_scanned_total",
			Help: "Paths examined by candidate iterators",
		}, []string{"strategy"}),

		Yielded: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "zpreserve_candidates_yielded_total",
			Help: "Candidates returned for preservation work",
		}, []string{"strategy"}),

		Skipped: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "zpreserve_candidates_skipped_total",
			Help: "Paths passed over by candidate iterators",
		}, []string{"strategy", "reason"}),

		IndexPages: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "zpreserve_index_pages_total",
			Help: "Pages fetched from the secondary index",
		}, []string{"query"}),

		IndexRemovals: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "zpreserve_index_desync_removals_total",
			Help: "Index entries removed because their metadata was missing",
		}),
	}
}

// InitScanMetrics returns the process-wide scan metrics, registering them on first use.
// If registry is nil the default Prometheus registry is used.
func InitScanMetrics(registry prometheus.Registerer) *ScanMetrics {
	scanMetricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		scanMetricsInstance = NewScanMetrics(registry)
	})
	return scanMetricsInstance
}

func (m *ScanMetrics) ObserveScanned(strategy string) {
	if m != nil {
		m.Scanned.WithLabelValues(strategy).Inc()
	}
}

func (m *ScanMetrics) ObserveYielded(strategy string) {
	if m != nil {
		m.Yielded.WithLabelValues(strategy).Inc()
	}
}

func (m *ScanMetrics) ObserveSkipped(strategy, reason string) {
	if m != nil {
		m.Skipped.WithLabelValues(strategy, reason).Inc()
	}
}

func (m *ScanMetrics) ObserveIndexPage(query string) {
	if m != nil {
		m.IndexPages.WithLabelValues(query).Inc()
	}
}

func (m *ScanMetrics) ObserveIndexRemoval() {
	if m != nil {
		m.IndexRemovals.Inc()
	}
}

// WriteTextfile writes every metric gathered by g to path in the text exposition format, for
// the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
