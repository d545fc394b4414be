package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/ftahirops/ptop/collector"
	"github.com/ftahirops/ptop/engine"
	"github.com/ftahirops/ptop/model"
)

// Page identifies the current screen.
type Page int

const (
	PageProcesses Page = iota
	PageCharts
	pageCount
)

var pageNames = []string{"Processes", "Charts"}

type tickMsg time.Time

type terminateMsg struct {
	pid int
	err error
}

// Options configures a Model.
type Options struct {
	RenderInterval time.Duration
	SampleInterval time.Duration       // used to label the chart time span
	Terminator     collector.Terminator // nil disables the kill key
	Logger         zerolog.Logger
}

// Model is the bubbletea model. It is the render scheduler: every tick
// drains the snapshot queue through the Monitor.
type Model struct {
	mon  *engine.Monitor
	opts Options

	width  int
	height int
	page   Page

	table       table.Model
	filterInput textinput.Model
	filtering   bool
	rows        *rowCache

	paused     bool
	stale      bool              // snapshots were applied while paused
	frozen     engine.SeriesView // charts shown while paused
	confirmPID int

	status     string
	statusErr  bool
	statusTime time.Time
}

// NewModel creates a new TUI model driving mon.
func NewModel(mon *engine.Monitor, opts Options) Model {
	if opts.RenderInterval <= 0 {
		opts.RenderInterval = 250 * time.Millisecond
	}

	t := table.New(
		table.WithColumns(tableColumns(80)),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	t.SetStyles(tableStyles())

	ti := textinput.New()
	ti.Placeholder = "filter by name or pid..."
	ti.CharLimit = 64
	ti.SetValue(mon.Filter())

	return Model{
		mon:         mon,
		opts:        opts,
		table:       t,
		filterInput: ti,
		rows:        newRowCache(),
	}
}

func (m Model) Init() tea.Cmd {
	return tick(m.opts.RenderInterval)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func terminate(term collector.Terminator, pid int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return terminateMsg{pid: pid, err: term.Terminate(ctx, pid)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(m.columns())
		m.table.SetHeight(max(msg.Height-9, 3))
		return m, nil

	case tickMsg:
		// The queue is drained while paused too; only the table and charts hold still.
		res := m.mon.Tick()
		switch {
		case res.Applied == 0:
		case m.paused:
			m.stale = true
		default:
			m.applyOps(res.Ops)
		}
		return m, tick(m.opts.RenderInterval)

	case terminateMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("terminate %d: %v", msg.pid, msg.err), true)
			m.opts.Logger.Warn().Err(msg.err).Int("pid", msg.pid).Msg("terminate failed")
		} else {
			m.setStatus(fmt.Sprintf("sent SIGTERM to %d", msg.pid), false)
			m.opts.Logger.Info().Int("pid", msg.pid).Msg("process terminated")
		}
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		if m.confirmPID != 0 {
			return m.updateConfirm(msg)
		}
		return m.updateNormal(msg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		m.filtering = true
		m.filterInput.Focus()
		return m, textinput.Blink
	case "p":
		m.sortBy(model.SortPID)
	case "n":
		m.sortBy(model.SortName)
	case "c":
		m.sortBy(model.SortCPU)
	case "m":
		m.sortBy(model.SortMemory)
	case "tab":
		m.page = (m.page + 1) % pageCount
	case " ":
		m.paused = !m.paused
		if m.paused {
			m.frozen = m.mon.CurrentSeries()
		} else if m.stale {
			m.applyOps(nil)
		}
	case "x":
		if m.opts.Terminator == nil {
			m.setStatus("terminate is not supported by this source", true)
			return m, nil
		}
		if pid := selectedPID(m.table.SelectedRow()); pid > 0 {
			m.confirmPID = pid
		}
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	case "esc":
		m.filtering = false
		m.filterInput.Blur()
		m.filterInput.SetValue("")
		m.mon.SetFilter("")
		m.refresh()
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	if v := m.filterInput.Value(); v != m.mon.Filter() {
		m.mon.SetFilter(v)
		m.refresh()
	}
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pid := m.confirmPID
	m.confirmPID = 0
	switch msg.String() {
	case "y", "Y":
		return m, terminate(m.opts.Terminator, pid)
	case "ctrl+c":
		return m, tea.Quit
	}
	m.setStatus("terminate cancelled", false)
	return m, nil
}

func (m *Model) sortBy(key model.SortKey) {
	m.mon.SetSort(key)
	m.refresh()
}

// refresh re-reconciles the latest snapshot after a filter or sort change.
func (m *Model) refresh() {
	m.applyOps(m.mon.Refresh().Ops)
}

func (m *Model) applyOps(ops []engine.RowOp) {
	if m.stale {
		// ops skipped while paused are lost, so every row is formatted again
		m.rows = newRowCache()
		m.stale = false
	}
	selected := selectedPID(m.table.SelectedRow())
	rows := m.rows.apply(ops, m.mon.CurrentRows())
	m.table.SetColumns(m.columns())
	m.table.SetRows(rows)
	if selected > 0 {
		for i, r := range rows {
			if selectedPID(r) == selected {
				m.table.SetCursor(i)
				break
			}
		}
	}
}

// columns returns the table columns with a sort indicator on the active key.
func (m Model) columns() []table.Column {
	w := m.width
	if w == 0 {
		w = 80
	}
	cols := tableColumns(w - 2)
	s := m.mon.Sort()
	arrow := "↑"
	if s.Descending {
		arrow = "↓"
	}
	idx := map[model.SortKey]int{model.SortPID: 0, model.SortName: 1, model.SortCPU: 2, model.SortMemory: 3}[s.Key]
	cols[idx].Title += " " + arrow
	return cols
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
	m.statusTime = time.Now()
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")
	sb.WriteString(m.renderTabs())
	sb.WriteString("\n")

	switch m.page {
	case PageCharts:
		sb.WriteString(m.renderCharts())
	default:
		sb.WriteString(tableBoxStyle.Render(m.table.View()))
	}
	sb.WriteString("\n")
	sb.WriteString(m.renderStatusBar())
	return sb.String()
}

func (m Model) renderHeader() string {
	snap := m.mon.Latest()
	title := titleStyle.Render("ptop")
	if snap == nil {
		return title + dimStyle.Render("  waiting for first scan...")
	}
	barW := 20
	cpu := fmt.Sprintf("%s %s %s",
		labelStyle.Render("CPU"), bar(snap.SystemCPUPercent, barW),
		pctStyle(snap.SystemCPUPercent).Render(fmt.Sprintf("%5.1f%%", snap.SystemCPUPercent)))
	mem := fmt.Sprintf("%s %s %s %s",
		labelStyle.Render("MEM"), bar(snap.SystemMemPercent, barW),
		pctStyle(snap.SystemMemPercent).Render(fmt.Sprintf("%5.1f%%", snap.SystemMemPercent)),
		dimStyle.Render(humanize.IBytes(snap.MemAvailableBytes)+" free"))
	info := dimStyle.Render(fmt.Sprintf("%d cores  %d procs  %s scan  %s",
		snap.CoreCount, len(snap.Processes), snap.Kind, snap.Timestamp.Format("15:04:05")))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", cpu, "   ", mem, "   ", info)
}

func (m Model) renderTabs() string {
	var parts []string
	for i, name := range pageNames {
		if Page(i) == m.page {
			parts = append(parts, activeTab.Render(name))
		} else {
			parts = append(parts, inactiveTab.Render(name))
		}
	}
	sortInfo := labelStyle.Render("sort: ") + valueStyle.Render(m.mon.Sort().String())
	filter := m.mon.Filter()
	if m.filtering {
		filter = m.filterInput.View()
	} else if filter == "" {
		filter = dimStyle.Render("none")
	} else {
		filter = valueStyle.Render(filter)
	}
	if m.paused {
		sortInfo += "  " + warnStyle.Render("PAUSED")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, ""), "  ", sortInfo, "  ", labelStyle.Render("filter: "), filter)
}

func (m Model) renderCharts() string {
	w := m.width
	if w == 0 {
		w = 80
	}
	series := m.mon.CurrentSeries()
	if m.paused {
		series = m.frozen
	}
	span := ""
	if m.opts.SampleInterval > 0 && len(series.System) > 1 {
		span = (time.Duration(len(series.System)-1) * m.opts.SampleInterval).Round(time.Second).String()
	}

	var sb strings.Builder
	sb.WriteString(areaChart(series.System, "System CPU %", w, 8, 0, 100, pctStyle, span))
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Top %d processes", len(series.Top))))
	sb.WriteString("\n")

	maxVal := 0.0
	for _, ps := range series.Top {
		maxVal = max(maxVal, autoScale(ps.Values, 100))
	}
	labelW := 24
	sparkW := max(w-labelW-12, 10)
	for i, ps := range series.Top {
		style := seriesStyle(i)
		label := truncate(fmt.Sprintf("%s (%d)", ps.Name, ps.PID), labelW)
		last := 0.0
		if n := len(ps.Values); n > 0 {
			last = ps.Values[n-1]
		}
		sb.WriteString(fmt.Sprintf("%s %s %s\n",
			style.Render(fmt.Sprintf("%-*s", labelW, label)),
			sparkline(ps.Values, sparkW, maxVal, style),
			valueStyle.Render(fmt.Sprintf("%5.1f%%", last))))
	}
	if len(series.Top) == 0 {
		sb.WriteString(dimStyle.Render("no processes tracked yet\n"))
	}
	return sb.String()
}

func (m Model) renderStatusBar() string {
	if m.confirmPID != 0 {
		return warnStyle.Render(fmt.Sprintf("Terminate PID %d? y to confirm, any other key to cancel", m.confirmPID))
	}
	if m.status != "" && time.Since(m.statusTime) < 5*time.Second {
		if m.statusErr {
			return critStyle.Render(m.status)
		}
		return okStyle.Render(m.status)
	}
	if m.filtering {
		return helpStyle.Render("enter: keep filter  esc: clear")
	}
	if n := len(m.mon.HighUsage()); n > 0 {
		return warnStyle.Render(fmt.Sprintf("%d process(es) over the usage threshold  ", n)) +
			helpStyle.Render("/ filter  p/n/c/m sort  tab page  x kill  space pause  q quit")
	}
	return helpStyle.Render("/ filter  p/n/c/m sort  tab page  x kill  space pause  q quit")
}
