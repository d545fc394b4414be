package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ftahirops/ptop/config"
	"github.com/ftahirops/ptop/engine"
)

// ── ANSI color/style codes ──────────────────────────────────────────────────

const (
	R = "\033[0m" // reset
	B = "\033[1m" // bold
	D = "\033[2m" // dim

	FYel = "\033[33m"
	FCyn = "\033[36m"

	FBRed = "\033[91m"
	FBGrn = "\033[92m"
	FBYel = "\033[93m"
	FBWht = "\033[97m"

	BBlu = "\033[44m"
)

const (
	tCPUWarn = 50.0
	tCPUCrit = 80.0
	tMemWarn = 70.0
	tMemCrit = 85.0

	watchRows = 20
)

// ── Styling helpers ─────────────────────────────────────────────────────────

func cpct(v float64, warn, crit float64) string {
	switch {
	case v >= crit:
		return fmt.Sprintf("%s%s%6.1f%%%s", B, FBRed, v, R)
	case v >= warn:
		return fmt.Sprintf("%s%6.1f%%%s", FBYel, v, R)
	default:
		return fmt.Sprintf("%s%6.1f%%%s", FBGrn, v, R)
	}
}

func bar(pct float64, w int) string {
	pct = max(0, min(pct, 100))
	filled := min(int(pct/100.0*float64(w)), w)
	empty := w - filled
	var c string
	switch {
	case pct >= 90:
		c = FBRed
	case pct >= 70:
		c = FBYel
	case pct >= 40:
		c = FYel
	default:
		c = FBGrn
	}
	return fmt.Sprintf("%s%s%s%s%s", c, strings.Repeat("#", filled), D, strings.Repeat("-", empty), R)
}

// spark renders the newest w values as block characters scaled to maxVal.
func spark(data []float64, w int, maxVal float64) string {
	blocks := []rune("▁▂▃▄▅▆▇█")
	if maxVal <= 0 {
		maxVal = 1
	}
	if len(data) > w {
		data = data[len(data)-w:]
	}
	var sb strings.Builder
	for _, v := range data {
		ratio := max(0, min(v/maxVal, 1))
		sb.WriteRune(blocks[int(ratio*float64(len(blocks)-1))])
	}
	return sb.String()
}

func trunc(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n < 3 {
		return string(r[:n])
	}
	return string(r[:n-2]) + ".."
}

func titleLine(t string) string {
	pad := max(78-len(t)-2, 0)
	return fmt.Sprintf("%s%s== %s %s%s", B, FCyn, t, strings.Repeat("=", pad), R)
}

func hr() string {
	return fmt.Sprintf("%s%s%s", D, strings.Repeat("-", 78), R)
}

// ── Watch mode ──────────────────────────────────────────────────────────────

// frameInfo is the per-frame header data that does not come from the monitor.
type frameInfo struct {
	iteration int
	count     int
	interval  time.Duration
}

// runWatch prints a frame on every render tick that applied new snapshots.
// The first applied scan only primes cpu baselines, so frames start after it.
// It returns after count frames, on cancel, or once a finite producer (a
// replay) is done and drained.
func runWatch(ctx context.Context, mon *engine.Monitor, cfg config.Config, count int, clear bool,
	producerDone <-chan struct{}, out io.Writer) error {

	ticker := time.NewTicker(cfg.View.RenderInterval)
	defer ticker.Stop()

	applied := 0
	iteration := 0
	pending := false // applied snapshots not yet printed
	// frame prints the view if something new was applied. final drops the
	// baseline wait, for a producer that will send nothing more.
	frame := func(final bool) bool {
		res := mon.Tick()
		applied += res.Applied
		pending = pending || res.Applied > 0
		if !pending || (applied < 2 && !final) {
			return false
		}
		pending = false
		iteration++
		if clear {
			fmt.Fprint(out, "\033[2J\033[H")
		}
		renderFrame(out, mon, frameInfo{iteration: iteration, count: count, interval: cfg.Sampler.Interval})
		return count > 0 && iteration >= count
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n%sStopped.%s\n", D, R)
			return nil
		case <-producerDone:
			if ctx.Err() != nil {
				fmt.Fprintf(out, "\n%sStopped.%s\n", D, R)
				return nil
			}
			frame(true)
			fmt.Fprintf(out, "\n%sReplay finished.%s\n", D, R)
			return nil
		case <-ticker.C:
			if frame(false) {
				return nil
			}
		}
	}
}

func renderFrame(w io.Writer, mon *engine.Monitor, info frameInfo) {
	snap := mon.Latest()
	if snap == nil {
		return
	}

	iter := fmt.Sprintf("#%d", info.iteration)
	if info.count > 0 {
		iter = fmt.Sprintf("#%d/%d", info.iteration, info.count)
	}
	fmt.Fprintf(w, " %s%s ptop v%s %s  %s  %s%s scan%s  %s%s%s  %s\n",
		B, BBlu+FBWht, Version, R,
		B+snap.Timestamp.Format("15:04:05")+R,
		FCyn, snap.Kind, R,
		D, info.interval, R,
		D+iter+R)
	fmt.Fprintln(w, hr())

	fmt.Fprintf(w, " CPU %s %s   MEM %s %s %s(%s free)%s\n",
		bar(snap.SystemCPUPercent, 20), cpct(snap.SystemCPUPercent, tCPUWarn, tCPUCrit),
		bar(snap.SystemMemPercent, 20), cpct(snap.SystemMemPercent, tMemWarn, tMemCrit),
		D, humanize.IBytes(snap.MemAvailableBytes), R)
	fmt.Fprintf(w, " %s%d cores  %d procs  %d skipped  sort: %s  filter: %s%s\n",
		D, snap.CoreCount, len(snap.Processes), snap.Skipped, mon.Sort(), filterLabel(mon.Filter()), R)
	fmt.Fprintln(w)

	rows := mon.CurrentRows()
	fmt.Fprintln(w, titleLine(fmt.Sprintf("PROCESSES (%d shown)", len(rows))))
	fmt.Fprintf(w, " %s%7s  %-32s %7s  %10s%s\n", B, "PID", "NAME", "CPU%", "MEMORY", R)
	for i, r := range rows {
		if i >= watchRows {
			fmt.Fprintf(w, " %s... %d more%s\n", D, len(rows)-watchRows, R)
			break
		}
		mark := "  "
		if r.HighUsage {
			mark = FBRed + "! " + R
		}
		fmt.Fprintf(w, " %7d  %s%-30s %s  %10s\n",
			r.PID, mark, trunc(r.Name, 30), cpct(r.CPUPercent, tCPUWarn, tCPUCrit), humanize.IBytes(r.MemoryBytes))
	}

	series := mon.CurrentSeries()
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleLine(fmt.Sprintf("TOP %d CPU HISTORY", len(series.Top))))
	fmt.Fprintf(w, " %-24s %s%s%s\n", "system", FCyn, spark(series.System, 40, 100), R)
	for _, ps := range series.Top {
		last := 0.0
		if n := len(ps.Values); n > 0 {
			last = ps.Values[n-1]
		}
		fmt.Fprintf(w, " %-24s %s %s\n",
			trunc(fmt.Sprintf("%s (%d)", ps.Name, ps.PID), 24), spark(ps.Values, 40, 100), cpct(last, tCPUWarn, tCPUCrit))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, hr())
	fmt.Fprintf(w, " %sCtrl+C%s to quit", B, R)
	if info.count > 0 {
		fmt.Fprintf(w, "  %s|%s  %d/%d", D, R, info.iteration, info.count)
	}
	fmt.Fprintln(w)
}

func filterLabel(f string) string {
	if f == "" {
		return "none"
	}
	return f
}

// ── JSON mode ───────────────────────────────────────────────────────────────

type jsonRow struct {
	PID         int     `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	HighUsage   bool    `json:"high_usage,omitempty"`
}

type jsonReport struct {
	Timestamp         time.Time         `json:"timestamp"`
	Kind              string            `json:"kind"`
	SystemCPUPercent  float64           `json:"system_cpu_percent"`
	SystemMemPercent  float64           `json:"system_mem_percent"`
	MemAvailableBytes uint64            `json:"mem_available_bytes"`
	CoreCount         int               `json:"core_count"`
	Sort              string            `json:"sort"`
	Filter            string            `json:"filter,omitempty"`
	Rows              []jsonRow         `json:"rows"`
	Series            engine.SeriesView `json:"series"`
}

// runJSON waits until a second scan has been applied, so process cpu% has
// a baseline, then prints the view and series once. A finite producer that
// ends earlier prints whatever it delivered.
func runJSON(ctx context.Context, mon *engine.Monitor, queue *engine.SnapshotQueue,
	producerDone <-chan struct{}, out io.Writer) error {

	applied := 0
wait:
	for applied < 2 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("interrupted before a settled scan: %w", ctx.Err())
		case <-queue.Ready():
			applied += mon.Tick().Applied
		case <-producerDone:
			if ctx.Err() != nil {
				return fmt.Errorf("interrupted before a settled scan: %w", ctx.Err())
			}
			applied += mon.Tick().Applied
			if applied == 0 {
				return errors.New("no snapshots were produced")
			}
			break wait
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(buildReport(mon))
}

func buildReport(mon *engine.Monitor) jsonReport {
	rep := jsonReport{
		Sort:   mon.Sort().String(),
		Filter: mon.Filter(),
		Rows:   []jsonRow{},
		Series: mon.CurrentSeries(),
	}
	if snap := mon.Latest(); snap != nil {
		rep.Timestamp = snap.Timestamp
		rep.Kind = snap.Kind.String()
		rep.SystemCPUPercent = snap.SystemCPUPercent
		rep.SystemMemPercent = snap.SystemMemPercent
		rep.MemAvailableBytes = snap.MemAvailableBytes
		rep.CoreCount = snap.CoreCount
	}
	for _, r := range mon.CurrentRows() {
		rep.Rows = append(rep.Rows, jsonRow{
			PID:         r.PID,
			Name:        r.Name,
			CPUPercent:  r.CPUPercent,
			MemoryBytes: r.MemoryBytes,
			HighUsage:   r.HighUsage,
		})
	}
	return rep
}
