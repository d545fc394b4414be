package engine

import (
	"github.com/rs/zerolog"

	"github.com/ftahirops/ptop/model"
)

// MonitorConfig configures the consumer side.
type MonitorConfig struct {
	TopK               int
	HistoryCapacity    int
	TopKSource         TopKSource
	DisplayLimit       int     // rows kept in the view; <= 0 means DisplayLimit
	HighUsageThreshold float64 // percent; <= 0 disables high-usage flags
}

// DefaultMonitorConfig returns the stock view settings.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		TopK:               DefaultTopK,
		HistoryCapacity:    DefaultHistoryCapacity,
		TopKSource:         TopKSourceSnapshot,
		DisplayLimit:       DisplayLimit,
		HighUsageThreshold: DefaultHighUsageThreshold,
	}
}

// TickResult summarizes one Tick.
type TickResult struct {
	Applied int // snapshots consumed
	Ops     []RowOp
	Skipped int // malformed rows left out of the view
}

// Monitor is the consumer of the snapshot queue. It owns the view and the
// chart series and must be driven from a single goroutine.
type Monitor struct {
	queue   *SnapshotQueue
	cfg     MonitorConfig
	view    *ViewState
	series  *SeriesStore
	high    *HighUsageTracker
	filter  string
	sort    model.SortCriterion
	latest  *model.Snapshot
	metrics *Metrics
	rec     *Recorder
	log     zerolog.Logger
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorMetrics records consumer counters into m.
func WithMonitorMetrics(m *Metrics) MonitorOption { return func(mon *Monitor) { mon.metrics = m } }

// WithMonitorLogger sets the monitor's logger.
func WithMonitorLogger(l zerolog.Logger) MonitorOption { return func(mon *Monitor) { mon.log = l } }

// WithRecorder writes every applied snapshot to r.
func WithRecorder(r *Recorder) MonitorOption { return func(mon *Monitor) { mon.rec = r } }

// NewMonitor creates a monitor reading from queue.
func NewMonitor(queue *SnapshotQueue, cfg MonitorConfig, opts ...MonitorOption) *Monitor {
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = DisplayLimit
	}
	m := &Monitor{
		queue:  queue,
		cfg:    cfg,
		view:   NewViewState(),
		series: NewSeriesStore(cfg.TopK, cfg.HistoryCapacity),
		high:   NewHighUsageTracker(cfg.HighUsageThreshold),
		sort:   model.DefaultSortCriterion(),
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// DrainSnapshots removes every pending snapshot from the queue.
func (m *Monitor) DrainSnapshots() []*model.Snapshot {
	return m.queue.DrainAll()
}

// Tick drains the queue and applies everything it held.
func (m *Monitor) Tick() TickResult {
	res := m.Apply(m.DrainSnapshots())
	m.metrics.consumerState(m.queue.Len(), m.series.Tracked())
	return res
}

// Apply feeds snaps, in order, into the series and the high-usage
// tracker. Only the last one is reconciled into the view.
func (m *Monitor) Apply(snaps []*model.Snapshot) TickResult {
	var res TickResult
	for _, snap := range snaps {
		if snap == nil {
			continue
		}
		ranked := snap.Processes
		if m.cfg.TopKSource == TopKSourceView {
			ranked = ApplyLimit(snap.Processes, m.filter, m.sort, m.cfg.DisplayLimit)
		}
		m.series.Update(snap.SystemCPUPercent, ranked)
		m.observeHighUsage(snap)
		m.latest = snap
		m.metrics.appliedSnapshot(snap)
		if err := m.rec.Record(snap); err != nil {
			m.log.Error().Err(err).Msg("recording stopped")
		}
		res.Applied++
	}
	if res.Applied == 0 {
		return res
	}
	rr := m.reconcile()
	res.Ops, res.Skipped = rr.Ops, rr.Skipped
	return res
}

func (m *Monitor) observeHighUsage(snap *model.Snapshot) {
	for _, tr := range m.high.Observe(snap) {
		if tr.High {
			m.log.Warn().Int("pid", tr.PID).Str("name", tr.Name).Str("reason", tr.Reason).Msg("high resource usage")
		} else {
			m.log.Info().Int("pid", tr.PID).Msg("high resource usage cleared")
		}
	}
}

func (m *Monitor) reconcile() ReconcileResult {
	var procs []model.ProcessSample
	if m.latest != nil {
		procs = m.latest.Processes
	}
	res := m.view.Reconcile(ApplyLimit(procs, m.filter, m.sort, m.cfg.DisplayLimit))
	m.view.markHighUsage(m.high)
	if res.Skipped > 0 {
		m.log.Debug().Int("rows", res.Skipped).Msg("malformed rows skipped")
	}
	return res
}

// Refresh re-reconciles the latest snapshot under the current filter and
// sort without touching the series.
func (m *Monitor) Refresh() ReconcileResult {
	return m.reconcile()
}

// SetFilter changes the filter text. Setting the same text again is a no-op.
func (m *Monitor) SetFilter(text string) {
	m.filter = text
}

// SetSort selects key: the current key flips direction, a new key starts
// descending.
func (m *Monitor) SetSort(key model.SortKey) {
	m.sort = m.sort.Select(key)
}

// SetSortCriterion replaces the criterion outright.
func (m *Monitor) SetSortCriterion(c model.SortCriterion) {
	m.sort = c
}

// CurrentRows returns the reconciled rows in display order.
func (m *Monitor) CurrentRows() []RenderRow { return m.view.Rows() }

// CurrentSeries returns the chart series.
func (m *Monitor) CurrentSeries() SeriesView { return m.series.Series() }

// TopSeries returns the tracked process series keyed by pid.
func (m *Monitor) TopSeries() map[int]ProcessSeries { return m.series.TopMap() }

// Latest returns the last applied snapshot, or nil.
func (m *Monitor) Latest() *model.Snapshot { return m.latest }

// Filter returns the active filter text.
func (m *Monitor) Filter() string { return m.filter }

// Sort returns the active sort criterion.
func (m *Monitor) Sort() model.SortCriterion { return m.sort }

// Config returns the monitor's configuration.
func (m *Monitor) Config() MonitorConfig { return m.cfg }

// HighUsage returns the visible rows currently flagged, in display order.
func (m *Monitor) HighUsage() []RenderRow {
	var out []RenderRow
	for _, r := range m.view.Rows() {
		if r.HighUsage {
			out = append(out, r)
		}
	}
	return out
}
