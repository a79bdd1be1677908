package fetchpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Manager.
// Create it with NewMetrics and register it with Register.
type Metrics struct {
	FilesEnqueued  prometheus.Counter
	FilesDropped   prometheus.Counter
	FilesProcessed prometheus.Counter
	FilesNotFound  prometheus.Counter
	FilesFailed    prometheus.Counter
	LiveWorkers    prometheus.Gauge
	BusyWorkers    prometheus.Gauge
	HandleDuration prometheus.Histogram
}

// NewMetrics creates the collectors without registering them.
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		FilesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "files_enqueued_total",
			Help:      "Total number of files handed over to a worker",
		}),
		FilesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "files_dropped_total",
			Help:      "Total number of files dropped because the pool was stopping",
		}),
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "files_processed_total",
			Help:      "Total number of files handled successfully",
		}),
		FilesNotFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "files_not_found_total",
			Help:      "Total number of files that vanished before they could be fetched",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "files_failed_total",
			Help:      "Total number of files the processor failed on",
		}),
		LiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "live_workers",
			Help:      "Current number of running workers",
		}),
		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "busy_workers",
			Help:      "Current number of workers inside the processor",
		}),
		HandleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handle_duration_seconds",
			Help:      "Histogram of processor handle latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Collectors returns every collector in m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesEnqueued,
		m.FilesDropped,
		m.FilesProcessed,
		m.FilesNotFound,
		m.FilesFailed,
		m.LiveWorkers,
		m.BusyWorkers,
		m.HandleDuration,
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
