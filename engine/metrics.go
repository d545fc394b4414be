package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ftahirops/ptop/model"
)

// Metrics exports sampler and consumer counters on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scans         *prometheus.CounterVec
	scanFailures  prometheus.Counter
	skips         *prometheus.CounterVec
	published     prometheus.Counter
	applied       prometheus.Counter
	queueDepth    prometheus.Gauge
	systemCPU     prometheus.Gauge
	systemMem     prometheus.Gauge
	trackedSeries prometheus.Gauge
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptop_scans_total",
			Help: "Completed scans by kind (full, incremental).",
		}, []string{"kind"}),
		scanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ptop_scan_failures_total",
			Help: "Scans abandoned because a system-wide read failed.",
		}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptop_process_skips_total",
			Help: "Per-process samples dropped during scans, by reason.",
		}, []string{"reason"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ptop_snapshots_published_total",
			Help: "Snapshots pushed by the sampler.",
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ptop_snapshots_applied_total",
			Help: "Snapshots applied by the consumer.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptop_queue_depth",
			Help: "Snapshots waiting for the consumer.",
		}),
		systemCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptop_system_cpu_percent",
			Help: "System-wide CPU usage from the latest snapshot.",
		}),
		systemMem: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptop_system_memory_percent",
			Help: "System-wide memory usage from the latest snapshot.",
		}),
		trackedSeries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptop_tracked_series",
			Help: "Processes currently tracked for charting.",
		}),
	}
	m.registry.MustRegister(
		m.scans, m.scanFailures, m.skips, m.published, m.applied,
		m.queueDepth, m.systemCPU, m.systemMem, m.trackedSeries,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) scanDone(kind model.ScanKind) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) scanFailed() {
	if m == nil {
		return
	}
	m.scanFailures.Inc()
}

func (m *Metrics) skipped(reason SkipReason) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) publishedSnapshot(depth int) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) appliedSnapshot(snap *model.Snapshot) {
	if m == nil {
		return
	}
	m.applied.Inc()
	m.systemCPU.Set(snap.SystemCPUPercent)
	m.systemMem.Set(snap.SystemMemPercent)
}

func (m *Metrics) consumerState(depth, tracked int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
	m.trackedSeries.Set(float64(tracked))
}
