package engine

import (
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/ftahirops/ptop/model"
)

func procs(ids ...int) []model.ProcessSample {
	out := make([]model.ProcessSample, len(ids))
	for i, id := range ids {
		out[i] = model.ProcessSample{PID: id, Name: "p", CPUPercent: float64(100 - i)}
	}
	return out
}

func viewPIDs(v *ViewState) []int {
	var out []int
	for _, r := range v.Rows() {
		out = append(out, r.PID)
	}
	return out
}

func TestReconcileInsertUpdateDelete(t *testing.T) {
	v := NewViewState()

	res := v.Reconcile(procs(10, 20, 30))
	if ins, upd, del := res.Counts(); ins != 3 || upd != 0 || del != 0 {
		t.Fatalf("first reconcile counts = %d/%d/%d, want 3/0/0", ins, upd, del)
	}
	id20 := mustRow(t, v, 20).ID

	res = v.Reconcile(procs(20, 40, 10))
	want := []RowOp{
		{Kind: OpUpdate, PID: 20, Index: 0},
		{Kind: OpInsert, PID: 40, Index: 1},
		{Kind: OpUpdate, PID: 10, Index: 2},
		{Kind: OpDelete, PID: 30, Index: -1},
	}
	if !reflect.DeepEqual(res.Ops, want) {
		t.Fatalf("ops = %+v\nwant %+v", res.Ops, want)
	}
	if got := viewPIDs(v); !reflect.DeepEqual(got, []int{20, 40, 10}) {
		t.Fatalf("rows = %v", got)
	}
	if r := mustRow(t, v, 20); r.ID != id20 || r.Rank != 0 {
		t.Fatalf("row 20 = %+v, want ID %d at rank 0", r, id20)
	}
	if _, ok := v.Row(30); ok {
		t.Fatal("pid 30 still present after delete")
	}
}

func TestReconcileUpdatesFieldsInPlace(t *testing.T) {
	v := NewViewState()
	v.Reconcile([]model.ProcessSample{{PID: 5, Name: "old", CPUPercent: 1, MemoryBytes: 10}})
	before := mustRow(t, v, 5)

	v.Reconcile([]model.ProcessSample{{PID: 5, Name: "new", CPUPercent: 2.5, MemoryBytes: 99}})
	after := mustRow(t, v, 5)
	if after.ID != before.ID {
		t.Fatalf("identity changed: %d -> %d", before.ID, after.ID)
	}
	if after.Name != "new" || after.CPUPercent != 2.5 || after.MemoryBytes != 99 {
		t.Fatalf("fields not refreshed: %+v", after)
	}
}

func TestReconcileReinsertGetsNewIdentity(t *testing.T) {
	v := NewViewState()
	v.Reconcile(procs(1))
	first := mustRow(t, v, 1).ID
	v.Reconcile(nil)
	if v.Len() != 0 {
		t.Fatalf("Len() = %d after empty list", v.Len())
	}
	v.Reconcile(procs(1))
	if got := mustRow(t, v, 1).ID; got == first {
		t.Fatal("re-entered pid reused a deleted row's identity")
	}
}

func TestReconcileSkipsMalformedRows(t *testing.T) {
	v := NewViewState()
	res := v.Reconcile([]model.ProcessSample{
		{PID: 3, Name: "ok", CPUPercent: 1},
		{PID: 0, Name: "zero pid"},
		{PID: -4, Name: "negative"},
		{PID: 8, Name: "nan", CPUPercent: math.NaN()},
		{PID: 9, Name: "inf", CPUPercent: math.Inf(1)},
		{PID: 3, Name: "duplicate", CPUPercent: 7},
		{PID: 11, Name: "also ok"},
	})
	if res.Skipped != 5 {
		t.Fatalf("Skipped = %d, want 5", res.Skipped)
	}
	if got := viewPIDs(v); !reflect.DeepEqual(got, []int{3, 11}) {
		t.Fatalf("rows = %v, want [3 11]", got)
	}
	if r := mustRow(t, v, 3); r.Name != "ok" || r.Rank != 0 {
		t.Fatalf("duplicate overwrote the first occurrence: %+v", r)
	}
	if r := mustRow(t, v, 11); r.Rank != 1 {
		t.Fatalf("rank of pid 11 = %d, want 1", r.Rank)
	}
}

// Random consecutive lists: the view always holds exactly the new pid set,
// retained pids keep their identity, and op count is bounded.
func TestReconcileSetEqualityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	v := NewViewState()
	var prev []int
	ids := map[int]uint64{}

	for round := 0; round < 200; round++ {
		n := rng.Intn(30)
		perm := rng.Perm(60)[:n]
		list := make([]model.ProcessSample, n)
		for i, p := range perm {
			list[i] = model.ProcessSample{PID: p + 1, Name: "x", CPUPercent: rng.Float64() * 100}
		}

		res := v.Reconcile(list)

		want := make([]int, n)
		for i, p := range list {
			want[i] = p.PID
		}
		if got := viewPIDs(v); !reflect.DeepEqual(sortedCopy(got), sortedCopy(want)) {
			t.Fatalf("round %d: view pids %v, want %v", round, got, want)
		}

		prevSet := map[int]bool{}
		for _, p := range prev {
			prevSet[p] = true
		}
		removed := 0
		for _, p := range prev {
			if !containsInt(want, p) {
				removed++
			}
		}
		for _, p := range want {
			r := mustRow(t, v, p)
			if prevSet[p] && ids[p] != r.ID {
				t.Fatalf("round %d: pid %d replaced instead of updated", round, p)
			}
			ids[p] = r.ID
		}
		if len(res.Ops) != n+removed {
			t.Fatalf("round %d: %d ops, want %d", round, len(res.Ops), n+removed)
		}
		prev = want
	}
}

func mustRow(t *testing.T, v *ViewState, pid int) RenderRow {
	t.Helper()
	r, ok := v.Row(pid)
	if !ok {
		t.Fatalf("pid %d missing from view", pid)
	}
	return r
}

func sortedCopy(in []int) []int {
	out := append([]int{}, in...)
	sort.Ints(out)
	return out
}

func containsInt(s []int, x int) bool {
	for _, v := range s {
		if v == x {
			return true
		}
	}
	return false
}
