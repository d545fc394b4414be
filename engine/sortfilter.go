package engine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ftahirops/ptop/model"
)

// DisplayLimit is how many processes the view renders and charts.
const DisplayLimit = 100

// Apply filters and sorts procs for display, capped at DisplayLimit.
func Apply(procs []model.ProcessSample, filter string, c model.SortCriterion) []model.ProcessSample {
	return ApplyLimit(procs, filter, c, DisplayLimit)
}

// ApplyLimit is Apply with an explicit cap; limit <= 0 means no cap.
// The input slice is not modified.
//
// The filter is a case-insensitive substring match on the name or the
// decimal pid. Sorting is stable, so ties keep the input order.
func ApplyLimit(procs []model.ProcessSample, filter string, c model.SortCriterion, limit int) []model.ProcessSample {
	needle := strings.ToLower(filter)

	out := make([]model.ProcessSample, 0, len(procs))
	for _, p := range procs {
		if needle == "" || matches(p, needle) {
			out = append(out, p)
		}
	}

	less := lessFunc(c.Key)
	sort.SliceStable(out, func(i, j int) bool {
		if c.Descending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matches(p model.ProcessSample, needle string) bool {
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strconv.Itoa(p.PID), needle)
}

func lessFunc(key model.SortKey) func(a, b model.ProcessSample) bool {
	switch key {
	case model.SortPID:
		return func(a, b model.ProcessSample) bool { return a.PID < b.PID }
	case model.SortName:
		return func(a, b model.ProcessSample) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case model.SortMemory:
		return func(a, b model.ProcessSample) bool { return a.MemoryBytes < b.MemoryBytes }
	default:
		return func(a, b model.ProcessSample) bool { return a.CPUPercent < b.CPUPercent }
	}
}
