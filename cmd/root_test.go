package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftahirops/ptop/collector"
	"github.com/ftahirops/ptop/config"
	"github.com/ftahirops/ptop/engine"
	"github.com/ftahirops/ptop/model"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, f cliFlags)
	}{
		{
			name: "defaults",
			args: nil,
			check: func(t *testing.T, f cliFlags) {
				if len(f.set) != 0 || f.Interval != engine.DefaultInterval {
					t.Fatalf("set=%v interval=%v", f.set, f.Interval)
				}
			},
		},
		{
			name: "positional interval in ms",
			args: []string{"-top-k", "3", "1000"},
			check: func(t *testing.T, f cliFlags) {
				if f.Interval != time.Second || !f.set["interval"] || f.TopK != 3 || !f.set["top-k"] {
					t.Fatalf("got %+v", f)
				}
			},
		},
		{
			name: "duration flags",
			args: []string{"-interval", "250ms", "-full-interval", "3s", "-watch", "-count", "5"},
			check: func(t *testing.T, f cliFlags) {
				if f.Interval != 250*time.Millisecond || f.FullInterval != 3*time.Second || !f.Watch || f.Count != 5 {
					t.Fatalf("got %+v", f)
				}
			},
		},
		{name: "bad positional", args: []string{"fast"}, wantErr: true},
		{name: "zero positional", args: []string{"0"}, wantErr: true},
		{name: "extra positional", args: []string{"100", "200"}, wantErr: true},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: true},
		{name: "bad topk source", args: []string{"-topk-source", "everything"}, wantErr: true},
		{name: "bad sort", args: []string{"-sort", "io"}, wantErr: true},
		{name: "watch and json", args: []string{"-watch", "-json"}, wantErr: true},
		{name: "negative count", args: []string{"-count", "-1"}, wantErr: true},
		{name: "record over replay", args: []string{"-record", "a.jsonl", "-replay", "a.jsonl"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parseFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			tt.check(t, f)
		})
	}
}

func TestApplyFlagsOnlyOverridesSetFlags(t *testing.T) {
	cfg := config.Default()
	cfg.View.TopK = 8 // from the file or env
	cfg.Sampler.FullScanInterval = 4 * time.Second

	f, err := parseFlags([]string{"-interval", "1s", "-sort", "memory", "-prometheus", ":9200"})
	if err != nil {
		t.Fatal(err)
	}
	applyFlags(&cfg, f)

	if cfg.View.TopK != 8 || cfg.Sampler.FullScanInterval != 4*time.Second {
		t.Fatalf("unset flags overrode config: top_k=%d full=%v", cfg.View.TopK, cfg.Sampler.FullScanInterval)
	}
	if cfg.Sampler.Interval != time.Second || cfg.View.Sort != "memory" {
		t.Fatalf("set flags ignored: interval=%v sort=%q", cfg.Sampler.Interval, cfg.View.Sort)
	}
	if cfg.Sampler.Backoff != 2*time.Second {
		t.Fatalf("derived backoff = %v, want 2s", cfg.Sampler.Backoff)
	}
	if !cfg.Prometheus.Enabled || cfg.Prometheus.Addr != ":9200" {
		t.Fatalf("prometheus = %+v", cfg.Prometheus)
	}
}

func TestApplyFlagsKeepsExplicitBackoff(t *testing.T) {
	cfg := config.Default()
	cfg.Sampler.Backoff = 5 * time.Second
	f, _ := parseFlags([]string{"2000"})
	applyFlags(&cfg, f)
	if cfg.Sampler.Backoff != 5*time.Second {
		t.Fatalf("backoff = %v, want the configured 5s", cfg.Sampler.Backoff)
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		f    cliFlags
		tty  bool
		want mode
	}{
		{cliFlags{}, true, modeTUI},
		{cliFlags{}, false, modeWatch},
		{cliFlags{Watch: true}, true, modeWatch},
		{cliFlags{JSON: true}, true, modeJSON},
		{cliFlags{JSON: true}, false, modeJSON},
	}
	for _, tt := range tests {
		if got := selectMode(tt.f, tt.tty); got != tt.want {
			t.Errorf("selectMode(%+v, tty=%v) = %v, want %v", tt.f, tt.tty, got, tt.want)
		}
	}
}

func TestStopTimeout(t *testing.T) {
	if got := stopTimeout(100 * time.Millisecond); got != time.Second {
		t.Fatalf("short interval: %v", got)
	}
	if got := stopTimeout(2 * time.Second); got != 4*time.Second {
		t.Fatalf("long interval: %v", got)
	}
}

func TestSparkAndTrunc(t *testing.T) {
	if got := spark([]float64{0, 50, 100, 100}, 2, 100); got != "██" {
		t.Fatalf("spark = %q", got)
	}
	if got := spark([]float64{-5, 500}, 10, 100); got != "▁█" {
		t.Fatalf("spark clamps: %q", got)
	}
	if got := trunc("systemd-journald", 8); got != "system.." {
		t.Fatalf("trunc = %q", got)
	}
	if got := trunc("bash", 8); got != "bash" {
		t.Fatalf("trunc short = %q", got)
	}
}

func settledMonitor(t *testing.T) *engine.Monitor {
	t.Helper()
	q := engine.NewSnapshotQueue()
	mon := engine.NewMonitor(q, engine.DefaultMonitorConfig())
	q.Push(&model.Snapshot{
		Timestamp:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SystemCPUPercent: 42,
		SystemMemPercent: 61,
		CoreCount:        4,
		Processes: []model.ProcessSample{
			{PID: 4120, Name: "postgres", CPUPercent: 31.5, MemoryBytes: 512 << 20},
			{PID: 77, Name: "nginx", CPUPercent: 95, MemoryBytes: 8 << 20},
		},
	})
	mon.Tick()
	return mon
}

func TestRenderFrame(t *testing.T) {
	mon := settledMonitor(t)
	var buf bytes.Buffer
	renderFrame(&buf, mon, frameInfo{iteration: 2, count: 5, interval: 500 * time.Millisecond})
	out := buf.String()

	for _, want := range []string{"ptop v" + Version, "03:04:05", "#2/5", "postgres", "nginx", "512 MiB", "TOP 2 CPU HISTORY", "postgres (4120)"} {
		if !strings.Contains(out, want) {
			t.Errorf("frame missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "nginx") > strings.Index(out, "postgres") {
		t.Errorf("rows not in cpu order:\n%s", out)
	}
	if !strings.Contains(out, "! ") {
		t.Errorf("high-usage row not marked:\n%s", out)
	}
}

func TestBuildReport(t *testing.T) {
	mon := settledMonitor(t)
	mon.SetFilter("post")
	mon.Refresh()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildReport(mon)); err != nil {
		t.Fatal(err)
	}
	var got jsonReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Rows) != 1 || got.Rows[0].PID != 4120 || got.Filter != "post" {
		t.Fatalf("rows = %+v filter = %q", got.Rows, got.Filter)
	}
	if len(got.Series.Top) != 2 || len(got.Series.System) != 1 {
		t.Fatalf("series = %+v", got.Series)
	}
}

// staticSource reports the same host on every call.
type staticSource struct{}

func (staticSource) SystemCPUPercent(context.Context) (float64, error) { return 25, nil }
func (staticSource) SystemMemory(context.Context) (collector.MemoryStat, error) {
	return collector.MemoryStat{Total: 8 << 30, Available: 4 << 30, UsedPercent: 50}, nil
}
func (staticSource) CoreCount(context.Context) (int, error) { return 2, nil }
func (staticSource) ListProcesses(context.Context) ([]collector.ProcessReading, error) {
	return []collector.ProcessReading{
		{PID: 10, Name: "worker", CPUPercentRaw: 80, MemoryBytes: 1 << 20},
		{PID: 11, Name: "shell", CPUPercentRaw: 2, MemoryBytes: 1 << 10},
	}, nil
}
func (staticSource) ReadProcess(_ context.Context, pid int) (collector.ProcessReading, error) {
	return collector.ProcessReading{PID: pid, CPUPercentRaw: 40}, nil
}

func TestAppRunJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Sampler.Interval = 5 * time.Millisecond
	cfg.Sampler.FullScanInterval = 10 * time.Millisecond
	cfg.Sampler.Backoff = 10 * time.Millisecond

	var out bytes.Buffer
	a := &app{cfg: cfg, mode: modeJSON, src: staticSource{}, out: &out, logger: zerolog.Nop()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	var rep jsonReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out.String())
	}
	if len(rep.Rows) != 2 || rep.Rows[0].PID != 10 {
		t.Fatalf("rows = %+v", rep.Rows)
	}
	if rep.CoreCount != 2 || rep.SystemCPUPercent != 25 {
		t.Fatalf("system = %+v", rep)
	}
}

func TestAppReplayJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := engine.NewRecorder(f)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, cpu := range []float64{0, 12} {
		rec.Record(&model.Snapshot{
			Timestamp:        ts.Add(time.Duration(i) * 10 * time.Millisecond),
			SystemCPUPercent: 30,
			CoreCount:        8,
			Processes:        []model.ProcessSample{{PID: 99, Name: "replayed", CPUPercent: cpu}},
		})
	}
	f.Close()

	var out bytes.Buffer
	a := &app{
		cfg:    config.Default(),
		flags:  cliFlags{ReplayPath: path, RecordPath: filepath.Join(dir, "again.jsonl")},
		mode:   modeJSON,
		out:    &out,
		logger: zerolog.Nop(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	var rep jsonReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out.String())
	}
	if len(rep.Rows) != 1 || rep.Rows[0].Name != "replayed" || rep.Rows[0].CPUPercent != 12 {
		t.Fatalf("rows = %+v", rep.Rows)
	}
	if !rep.Timestamp.Equal(ts.Add(10 * time.Millisecond)) {
		t.Fatalf("timestamp = %v", rep.Timestamp)
	}

	again, err := os.ReadFile(filepath.Join(dir, "again.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(again), "\n"); n != 2 {
		t.Fatalf("re-recorded %d frames, want 2", n)
	}
}

func TestAppReplayMissingFile(t *testing.T) {
	a := &app{
		cfg:    config.Default(),
		flags:  cliFlags{ReplayPath: filepath.Join(t.TempDir(), "missing.jsonl")},
		mode:   modeJSON,
		out:    &bytes.Buffer{},
		logger: zerolog.Nop(),
	}
	if err := a.run(context.Background()); err == nil {
		t.Fatal("expected an error for a missing recording")
	}
}

func TestAppReplayWatchSingleFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	engine.NewRecorder(f).Record(&model.Snapshot{
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SystemCPUPercent: 30,
		CoreCount:        4,
		Processes:        []model.ProcessSample{{PID: 42, Name: "lonely", CPUPercent: 7}},
	})
	f.Close()

	var out bytes.Buffer
	a := &app{
		cfg:    config.Default(),
		flags:  cliFlags{ReplayPath: path},
		mode:   modeWatch,
		out:    &out,
		logger: zerolog.Nop(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	frame := strings.Index(got, "lonely")
	done := strings.Index(got, "Replay finished.")
	if frame < 0 || done < 0 || frame > done {
		t.Fatalf("single-frame replay output:\n%s", got)
	}
}
