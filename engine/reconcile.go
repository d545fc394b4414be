package engine

import (
	"math"
	"time"

	"github.com/ftahirops/ptop/model"
)

// OpKind is the kind of row operation produced by a reconcile.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// RowOp is one change to the rendered table.
// Index is the row's rank in the new list, or -1 for deletes.
type RowOp struct {
	Kind  OpKind
	PID   int
	Index int
}

// RenderRow is the consumer's materialized view of one process.
// ID is assigned at insert and never changes while the pid stays visible.
type RenderRow struct {
	ID          uint64
	PID         int
	Name        string
	CPUPercent  float64
	MemoryBytes uint64
	Rank        int
	HighUsage   bool
	HighSince   time.Time
}

// ReconcileResult lists the operations applied by one Reconcile call.
type ReconcileResult struct {
	Ops     []RowOp
	Skipped int // malformed rows left out of this tick
}

// Counts returns how many inserts, updates and deletes the result holds.
func (r ReconcileResult) Counts() (inserts, updates, deletes int) {
	for _, op := range r.Ops {
		switch op.Kind {
		case OpInsert:
			inserts++
		case OpUpdate:
			updates++
		case OpDelete:
			deletes++
		}
	}
	return
}

// ViewState is the pid-keyed render state. It is owned by a single
// goroutine and is not safe for concurrent use.
type ViewState struct {
	rows   map[int]*RenderRow
	order  []int
	nextID uint64
}

// NewViewState creates an empty view.
func NewViewState() *ViewState {
	return &ViewState{rows: make(map[int]*RenderRow)}
}

// Reconcile brings the view in line with list, which must already be
// filtered and sorted. Rows present before are updated in place, new pids
// are inserted at their rank, and pids missing from list are deleted.
func (v *ViewState) Reconcile(list []model.ProcessSample) ReconcileResult {
	var res ReconcileResult
	seen := make(map[int]bool, len(list))
	order := make([]int, 0, len(list))

	for _, p := range list {
		if !validSample(p) || seen[p.PID] {
			res.Skipped++
			continue
		}
		seen[p.PID] = true
		rank := len(order)
		order = append(order, p.PID)

		row, ok := v.rows[p.PID]
		if ok {
			res.Ops = append(res.Ops, RowOp{Kind: OpUpdate, PID: p.PID, Index: rank})
		} else {
			v.nextID++
			row = &RenderRow{ID: v.nextID, PID: p.PID}
			v.rows[p.PID] = row
			res.Ops = append(res.Ops, RowOp{Kind: OpInsert, PID: p.PID, Index: rank})
		}
		row.Name = p.Name
		row.CPUPercent = p.CPUPercent
		row.MemoryBytes = p.MemoryBytes
		row.Rank = rank
	}

	// previous order keeps deletes deterministic
	for _, pid := range v.order {
		if !seen[pid] {
			delete(v.rows, pid)
			res.Ops = append(res.Ops, RowOp{Kind: OpDelete, PID: pid, Index: -1})
		}
	}
	v.order = order
	return res
}

func validSample(p model.ProcessSample) bool {
	if p.PID <= 0 {
		return false
	}
	return !math.IsNaN(p.CPUPercent) && !math.IsInf(p.CPUPercent, 0)
}

// Rows returns copies of the rows in rank order.
func (v *ViewState) Rows() []RenderRow {
	out := make([]RenderRow, 0, len(v.order))
	for _, pid := range v.order {
		out = append(out, *v.rows[pid])
	}
	return out
}

// Row returns a copy of the row for pid.
func (v *ViewState) Row(pid int) (RenderRow, bool) {
	r, ok := v.rows[pid]
	if !ok {
		return RenderRow{}, false
	}
	return *r, true
}

// Len returns the number of visible rows.
func (v *ViewState) Len() int { return len(v.order) }

// markHighUsage copies the high-usage flag onto the visible rows.
func (v *ViewState) markHighUsage(h *HighUsageTracker) {
	for pid, row := range v.rows {
		row.HighSince, row.HighUsage = h.Since(pid)
	}
}
