package engine

import (
	"sort"
	"time"

	"github.com/ftahirops/ptop/model"
)

const DefaultHighUsageThreshold = 90.0

// HighUsageTransition reports a pid entering or leaving the high-usage state.
type HighUsageTransition struct {
	PID    int
	Name   string
	High   bool
	Since  time.Time // when the condition started; zero when cleared
	Reason string    // "cpu" or "memory"; empty when cleared
}

// HighUsageTracker flags processes whose cpu% exceeds the threshold, or
// whose resident memory exceeds threshold% of total memory. The start time
// of the condition is kept for as long as it holds.
type HighUsageTracker struct {
	threshold float64
	since     map[int]time.Time
}

// NewHighUsageTracker creates a tracker; threshold <= 0 disables it.
func NewHighUsageTracker(threshold float64) *HighUsageTracker {
	return &HighUsageTracker{threshold: threshold, since: make(map[int]time.Time)}
}

// Enabled reports whether the tracker flags anything.
func (h *HighUsageTracker) Enabled() bool { return h.threshold > 0 }

// Observe updates the tracker from snap and returns the transitions, in
// pid order. Pids absent from a full scan are cleared; an incremental scan
// only covers the busiest cached pids, so absence there says nothing.
func (h *HighUsageTracker) Observe(snap *model.Snapshot) []HighUsageTransition {
	if !h.Enabled() || snap == nil {
		return nil
	}
	var out []HighUsageTransition
	memLimit := float64(snap.MemTotalBytes) * h.threshold / 100

	present := make(map[int]bool, len(snap.Processes))
	for _, p := range snap.Processes {
		present[p.PID] = true
		reason := ""
		switch {
		case p.CPUPercent > h.threshold:
			reason = "cpu"
		case snap.MemTotalBytes > 0 && float64(p.MemoryBytes) > memLimit:
			reason = "memory"
		}

		_, was := h.since[p.PID]
		switch {
		case reason != "" && !was:
			h.since[p.PID] = snap.Timestamp
			out = append(out, HighUsageTransition{PID: p.PID, Name: p.Name, High: true, Since: snap.Timestamp, Reason: reason})
		case reason == "" && was:
			delete(h.since, p.PID)
			out = append(out, HighUsageTransition{PID: p.PID, Name: p.Name})
		}
	}
	for pid := range h.since {
		if snap.Kind == model.ScanFull && !present[pid] {
			delete(h.since, pid)
			out = append(out, HighUsageTransition{PID: pid})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Since returns when pid entered the high-usage state.
func (h *HighUsageTracker) Since(pid int) (time.Time, bool) {
	t, ok := h.since[pid]
	return t, ok
}

// Len returns how many pids are flagged.
func (h *HighUsageTracker) Len() int { return len(h.since) }
