package engine

import (
	"fmt"
	"strings"

	"github.com/ftahirops/ptop/model"
)

const (
	DefaultTopK            = 5
	DefaultHistoryCapacity = 60
)

// TopKSource picks which list the chart's top-K set is taken from.
type TopKSource int

const (
	// TopKSourceSnapshot ranks by the raw snapshot (cpu descending), ignoring the filter.
	TopKSourceSnapshot TopKSource = iota
	// TopKSourceView uses the filtered, sorted display list.
	TopKSourceView
)

func (s TopKSource) String() string {
	if s == TopKSourceView {
		return "view"
	}
	return "snapshot"
}

// ParseTopKSource accepts "snapshot" or "view".
func ParseTopKSource(s string) (TopKSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "snapshot", "raw", "unfiltered":
		return TopKSourceSnapshot, nil
	case "view", "filtered":
		return TopKSourceView, nil
	}
	return TopKSourceSnapshot, fmt.Errorf("unknown top-k source %q (valid: snapshot, view)", s)
}

type trackedSeries struct {
	name    string
	history *RingBuffer
}

// SeriesStore keeps rolling cpu history for the whole system and for the
// current top-K processes. A pid's history lives only while it stays in
// the top-K set; re-entering starts from a fresh zero-padded buffer.
type SeriesStore struct {
	k        int
	capacity int
	system   *RingBuffer
	procs    map[int]*trackedSeries
	order    []int // current top-K in rank order
}

// ProcessSeries is one tracked process's history, oldest first.
type ProcessSeries struct {
	PID    int       `json:"pid"`
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// SeriesView is a read-only copy of the store.
type SeriesView struct {
	System []float64       `json:"system"`
	Top    []ProcessSeries `json:"top"`
}

// NewSeriesStore creates a store tracking k processes with capacity
// samples per series. Non-positive arguments fall back to the defaults.
func NewSeriesStore(k, capacity int) *SeriesStore {
	if k <= 0 {
		k = DefaultTopK
	}
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &SeriesStore{
		k:        k,
		capacity: capacity,
		system:   NewRingBuffer(capacity),
		procs:    make(map[int]*trackedSeries),
	}
}

// Update appends one sample to every series. ranked is the list the top-K
// set is drawn from; its first K valid distinct pids are tracked.
func (s *SeriesStore) Update(systemCPU float64, ranked []model.ProcessSample) {
	top := make([]model.ProcessSample, 0, s.k)
	inTop := make(map[int]bool, s.k)
	for _, p := range ranked {
		if len(top) == s.k {
			break
		}
		if !validSample(p) || inTop[p.PID] {
			continue
		}
		inTop[p.PID] = true
		top = append(top, p)
	}

	for pid := range s.procs {
		if !inTop[pid] {
			delete(s.procs, pid)
		}
	}

	// New entries are padded to the system length before this tick's
	// append so every series ends the update at the same length.
	for _, p := range top {
		if _, ok := s.procs[p.PID]; !ok {
			s.procs[p.PID] = &trackedSeries{history: NewZeroRingBuffer(s.capacity, s.system.Len())}
		}
	}

	s.system.Push(systemCPU)

	s.order = s.order[:0]
	for _, p := range top {
		ts := s.procs[p.PID]
		ts.name = p.Name
		ts.history.Push(p.CPUPercent)
		s.order = append(s.order, p.PID)
	}
}

// Series returns a copy of every series, top-K in rank order.
func (s *SeriesStore) Series() SeriesView {
	v := SeriesView{System: s.system.Values(), Top: make([]ProcessSeries, 0, len(s.order))}
	for _, pid := range s.order {
		ts := s.procs[pid]
		v.Top = append(v.Top, ProcessSeries{PID: pid, Name: ts.name, Values: ts.history.Values()})
	}
	return v
}

// TopMap returns the tracked series keyed by pid.
func (s *SeriesStore) TopMap() map[int]ProcessSeries {
	out := make(map[int]ProcessSeries, len(s.procs))
	for pid, ts := range s.procs {
		out[pid] = ProcessSeries{PID: pid, Name: ts.name, Values: ts.history.Values()}
	}
	return out
}

// Tracked returns the number of process series currently held.
func (s *SeriesStore) Tracked() int { return len(s.procs) }
