package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/dustin/go-humanize"

	"github.com/ftahirops/ptop/engine"
)

var columnTitles = []string{"PID", "NAME", "CPU%", "MEMORY"}

func tableColumns(width int) []table.Column {
	nameW := width - 8 - 8 - 10 - 8 // other columns plus cell padding
	if nameW < 12 {
		nameW = 12
	}
	return []table.Column{
		{Title: columnTitles[0], Width: 8},
		{Title: columnTitles[1], Width: nameW},
		{Title: columnTitles[2], Width: 8},
		{Title: columnTitles[3], Width: 10},
	}
}

// rowCache holds the formatted table row of every visible pid. Applying a
// reconcile result only reformats the rows it inserted or updated.
type rowCache struct {
	rows      map[int]table.Row
	formatted int // rows formatted by the last apply
}

func newRowCache() *rowCache {
	return &rowCache{rows: make(map[int]table.Row)}
}

// apply updates the cache from ops and returns the table rows in the order
// of current, the reconciled view.
func (c *rowCache) apply(ops []engine.RowOp, current []engine.RenderRow) []table.Row {
	byPID := make(map[int]engine.RenderRow, len(current))
	for _, r := range current {
		byPID[r.PID] = r
	}

	c.formatted = 0
	for _, op := range ops {
		switch op.Kind {
		case engine.OpDelete:
			delete(c.rows, op.PID)
		case engine.OpInsert, engine.OpUpdate:
			if r, ok := byPID[op.PID]; ok {
				c.rows[op.PID] = formatRow(r)
				c.formatted++
			}
		}
	}

	out := make([]table.Row, 0, len(current))
	for _, r := range current {
		row, ok := c.rows[r.PID]
		if !ok {
			row = formatRow(r)
			c.rows[r.PID] = row
			c.formatted++
		}
		out = append(out, row)
	}
	return out
}

func (c *rowCache) len() int { return len(c.rows) }

func formatRow(r engine.RenderRow) table.Row {
	name := r.Name
	if r.HighUsage {
		name = "! " + name
	}
	return table.Row{
		strconv.Itoa(r.PID),
		name,
		fmt.Sprintf("%.1f", r.CPUPercent),
		humanize.IBytes(r.MemoryBytes),
	}
}

// selectedPID parses the pid column of a table row.
func selectedPID(row table.Row) int {
	if len(row) == 0 {
		return 0
	}
	pid, err := strconv.Atoi(row[0])
	if err != nil {
		return 0
	}
	return pid
}
