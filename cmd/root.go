package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/ftahirops/ptop/collector"
	"github.com/ftahirops/ptop/config"
	"github.com/ftahirops/ptop/engine"
	"github.com/ftahirops/ptop/model"
	"github.com/ftahirops/ptop/ui"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

type mode int

const (
	modeTUI mode = iota
	modeWatch
	modeJSON
)

func (m mode) String() string {
	switch m {
	case modeWatch:
		return "watch"
	case modeJSON:
		return "json"
	}
	return "tui"
}

// cliFlags holds parsed command-line flags. set records which flags were
// given explicitly, so only those override the config file and environment.
type cliFlags struct {
	ConfigPath       string
	Interval         time.Duration
	FullInterval     time.Duration
	IncrementalLimit int
	TopK             int
	History          int
	RenderInterval   time.Duration
	TopKSource       string
	Filter           string
	Sort             string
	Watch            bool
	Count            int
	JSON             bool
	Prometheus       string
	LogLevel         string
	LogFile          string
	RecordPath       string
	ReplayPath       string
	Version          bool

	set map[string]bool
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ptop v%s: live process monitor

Usage:
  ptop [OPTIONS] [INTERVAL_MS]

Modes:
  (default)             Interactive TUI when stdout is a terminal, else -watch
  -watch                Print the top processes on every render tick
  -json                 Print one settled snapshot as JSON, then exit
  -version              Print version and exit

Options:
  -config PATH          Config file (default: $PTOP_CONFIG or ~/.config/ptop/config.yaml)
  -interval D           Sampling interval (default: 500ms)
  -full-interval D      Deadline between full process scans (default: 2s)
  -incremental-limit N  Processes refreshed by an incremental scan (default: 100)
  -top-k N              Processes tracked for charts (default: 5)
  -history N            Samples kept per chart series (default: 60)
  -render-interval D    Render tick (default: 250ms)
  -topk-source S        Where the top-K comes from: snapshot or view (default: snapshot)
  -filter TEXT          Initial name or pid filter
  -sort KEY             Initial sort: pid, name, cpu, memory (default: cpu)
  -count N              Iterations for -watch (0 = infinite)
  -prometheus ADDR      Serve Prometheus metrics on ADDR (e.g. 127.0.0.1:9101)
  -log-level LEVEL      debug, info, warn, error (default: info)
  -log-file PATH        Log file for TUI mode (default: $XDG_STATE_HOME/ptop/ptop.log)
  -record FILE          Record every applied snapshot to FILE (JSON lines)
  -replay FILE          Replay a recording instead of sampling the host

Positional:
  INTERVAL_MS           Sampling interval in milliseconds: ptop 1000 = ptop -interval 1s

Examples:
  ptop                            Interactive TUI, 500ms sampling
  ptop 1000                       Interactive TUI, 1s sampling
  ptop -filter nginx -sort memory
  ptop -watch -count 10           10 watch frames, then exit
  ptop -json | jq '.rows[0]'
  ptop -prometheus :9101          TUI plus a /metrics endpoint
  ptop -record /tmp/ptop.jsonl
  ptop -replay /tmp/ptop.jsonl -watch
`, Version)
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("ptop", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	fs.StringVar(&f.ConfigPath, "config", "", "Config file path")
	fs.DurationVar(&f.Interval, "interval", engine.DefaultInterval, "Sampling interval")
	fs.DurationVar(&f.FullInterval, "full-interval", engine.DefaultFullScanInterval, "Deadline between full scans")
	fs.IntVar(&f.IncrementalLimit, "incremental-limit", engine.DefaultIncrementalLimit, "Processes refreshed by an incremental scan")
	fs.IntVar(&f.TopK, "top-k", engine.DefaultTopK, "Processes tracked for charts")
	fs.IntVar(&f.History, "history", engine.DefaultHistoryCapacity, "Samples kept per series")
	fs.DurationVar(&f.RenderInterval, "render-interval", 250*time.Millisecond, "Render tick")
	fs.StringVar(&f.TopKSource, "topk-source", engine.TopKSourceSnapshot.String(), "snapshot or view")
	fs.StringVar(&f.Filter, "filter", "", "Initial filter")
	fs.StringVar(&f.Sort, "sort", model.SortCPU.String(), "Initial sort key")
	fs.BoolVar(&f.Watch, "watch", false, "CLI output mode")
	fs.IntVar(&f.Count, "count", 0, "Iterations for -watch (0=infinite)")
	fs.BoolVar(&f.JSON, "json", false, "Print one snapshot as JSON and exit")
	fs.StringVar(&f.Prometheus, "prometheus", "", "Prometheus listen address")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file for TUI mode")
	fs.StringVar(&f.RecordPath, "record", "", "Record snapshots to file")
	fs.StringVar(&f.ReplayPath, "replay", "", "Replay snapshots from a recorded file")
	fs.BoolVar(&f.Version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage()
		}
		return f, err
	}

	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	// `ptop 1000` = `ptop -interval 1s`
	if rest := fs.Args(); len(rest) > 0 {
		ms, err := strconv.Atoi(rest[0])
		if err != nil || ms <= 0 {
			return f, fmt.Errorf("invalid interval %q: want a positive number of milliseconds", rest[0])
		}
		if len(rest) > 1 {
			return f, fmt.Errorf("unexpected arguments: %v", rest[1:])
		}
		f.Interval = time.Duration(ms) * time.Millisecond
		f.set["interval"] = true
	}

	if f.set["topk-source"] {
		if _, err := engine.ParseTopKSource(f.TopKSource); err != nil {
			return f, err
		}
	}
	if f.set["sort"] {
		if _, err := model.ParseSortKey(f.Sort); err != nil {
			return f, err
		}
	}
	if f.Watch && f.JSON {
		return f, errors.New("-watch and -json are mutually exclusive")
	}
	if f.RecordPath != "" && f.RecordPath == f.ReplayPath {
		return f, errors.New("-record and -replay must name different files")
	}
	if f.Count < 0 {
		return f, fmt.Errorf("invalid -count %d", f.Count)
	}
	return f, nil
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cfg *config.Config, f cliFlags) {
	if f.set["interval"] {
		// A backoff still derived from the old interval follows the new one.
		if cfg.Sampler.Backoff == 2*cfg.Sampler.Interval {
			cfg.Sampler.Backoff = 2 * f.Interval
		}
		cfg.Sampler.Interval = f.Interval
	}
	if f.set["full-interval"] {
		cfg.Sampler.FullScanInterval = f.FullInterval
	}
	if f.set["incremental-limit"] {
		cfg.Sampler.IncrementalLimit = f.IncrementalLimit
	}
	if f.set["top-k"] {
		cfg.View.TopK = f.TopK
	}
	if f.set["history"] {
		cfg.View.HistorySize = f.History
	}
	if f.set["render-interval"] {
		cfg.View.RenderInterval = f.RenderInterval
	}
	if f.set["topk-source"] {
		cfg.View.TopKSource = f.TopKSource
	}
	if f.set["sort"] {
		cfg.View.Sort = f.Sort
	}
	if f.set["log-level"] {
		cfg.Logs.Level = f.LogLevel
	}
	if f.set["log-file"] {
		cfg.Logs.File = f.LogFile
	}
	if f.Prometheus != "" {
		cfg.Prometheus.Enabled = true
		cfg.Prometheus.Addr = f.Prometheus
	}
}

func selectMode(f cliFlags, stdoutTTY bool) mode {
	switch {
	case f.JSON:
		return modeJSON
	case f.Watch || !stdoutTTY:
		return modeWatch
	}
	return modeTUI
}

// stopTimeout bounds how long shutdown waits for the sampler.
func stopTimeout(interval time.Duration) time.Duration {
	return max(2*interval, time.Second)
}

// Run parses flags and starts the application.
func Run() error {
	f, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		printUsage()
		return err
	}
	if f.Version {
		fmt.Printf("ptop v%s\n", Version)
		return nil
	}

	// flags > env > file > defaults
	path := f.ConfigPath
	if path == "" {
		path = config.Path()
	}
	cfg, loadErr := config.Load(path)
	envErr := config.ApplyEnvOverrides(&cfg)
	applyFlags(&cfg, f)
	validErr := cfg.Validate()

	tty := term.IsTerminal(int(os.Stdout.Fd()))
	m := selectMode(f, tty)

	logger, closer, err := setupLogging(cfg.Logs.Level, cfg.Logs.File, m == modeTUI)
	if err != nil {
		return err
	}
	defer closer.Close()

	if loadErr != nil {
		logger.Warn().Err(loadErr).Str("path", path).Msg("config unreadable, using defaults")
	}
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("ignoring malformed environment overrides")
	}
	if validErr != nil {
		logger.Warn().Err(validErr).Msg("config values replaced with defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:    cfg,
		flags:  f,
		mode:   m,
		tty:    tty,
		src:    collector.NewHostSource(),
		out:    os.Stdout,
		logger: logger,
	}
	return a.run(ctx)
}

// app wires the sampler, the monitor and the selected front end.
type app struct {
	cfg    config.Config
	flags  cliFlags
	mode   mode
	tty    bool
	src    collector.Source
	out    io.Writer
	logger zerolog.Logger
}

func (a *app) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	metrics := engine.NewMetrics()
	queue := engine.NewSnapshotQueue()

	monOpts := []engine.MonitorOption{
		engine.WithMonitorMetrics(metrics),
		engine.WithMonitorLogger(a.logger.With().Str("component", "monitor").Logger()),
	}
	if a.flags.RecordPath != "" {
		f, err := os.Create(a.flags.RecordPath)
		if err != nil {
			return fmt.Errorf("cannot create record file: %w", err)
		}
		defer f.Close()
		rec := engine.NewRecorder(f)
		monOpts = append(monOpts, engine.WithRecorder(rec))
		defer func() {
			a.logger.Info().Str("path", a.flags.RecordPath).Int("frames", rec.Frames()).Msg("recording closed")
		}()
	}
	mon := engine.NewMonitor(queue, a.cfg.MonitorConfig(), monOpts...)
	mon.SetSortCriterion(a.cfg.SortCriterion())
	mon.SetFilter(a.flags.Filter)

	a.logger.Info().
		Str("mode", a.mode.String()).
		Dur("interval", a.cfg.Sampler.Interval).
		Dur("full_scan_interval", a.cfg.Sampler.FullScanInterval).
		Int("top_k", a.cfg.View.TopK).
		Str("replay", a.flags.ReplayPath).
		Msg("ptop starting")

	g, gctx := errgroup.WithContext(ctx)
	task, err := a.startProducer(gctx, queue, metrics)
	if err != nil {
		return err
	}

	if a.cfg.Prometheus.Enabled {
		g.Go(func() error {
			serveMetrics(gctx, a.cfg.Prometheus.Addr, metrics.Handler(), a.logger)
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		switch a.mode {
		case modeJSON:
			return runJSON(gctx, mon, queue, task.Done(), a.out)
		case modeWatch:
			return runWatch(gctx, mon, a.cfg, a.flags.Count, a.tty, task.Done(), a.out)
		}
		return a.runTUI(gctx, mon)
	})

	err = g.Wait()
	if !task.Stop(stopTimeout(a.cfg.Sampler.Interval)) {
		a.logger.Warn().Msg("snapshot producer did not stop in time")
	}
	a.logger.Info().Msg("ptop stopped")
	return err
}

// startProducer starts the sampler, or a replay of -replay FILE.
func (a *app) startProducer(ctx context.Context, queue *engine.SnapshotQueue, metrics *engine.Metrics) (*engine.Task, error) {
	if a.flags.ReplayPath == "" {
		sampler := engine.NewSampler(a.src, queue, a.cfg.SamplerConfig(),
			engine.WithMetrics(metrics),
			engine.WithLogger(a.logger.With().Str("component", "sampler").Logger()))
		return sampler.Start(ctx), nil
	}

	f, err := os.Open(a.flags.ReplayPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open replay file: %w", err)
	}
	defer f.Close()
	player, err := engine.NewPlayer(f, engine.WithPlayerLogger(a.logger.With().Str("component", "replay").Logger()))
	if err != nil {
		return nil, fmt.Errorf("cannot parse replay file: %w", err)
	}
	if n := player.Skipped(); n > 0 {
		a.logger.Warn().Int("lines", n).Msg("skipped malformed recording lines")
	}
	return player.Start(ctx, queue), nil
}

func (a *app) runTUI(ctx context.Context, mon *engine.Monitor) error {
	opts := ui.Options{
		RenderInterval: a.cfg.View.RenderInterval,
		SampleInterval: a.cfg.Sampler.Interval,
		Logger:         a.logger.With().Str("component", "ui").Logger(),
	}
	if t, ok := a.src.(collector.Terminator); ok && a.flags.ReplayPath == "" {
		opts.Terminator = t
	}
	p := tea.NewProgram(ui.NewModel(mon, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// serveMetrics runs the Prometheus listener until ctx is done. A listener
// failure is logged and leaves the rest of ptop running.
func serveMetrics(ctx context.Context, addr string, h http.Handler, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info().Str("addr", addr).Msg("serving prometheus metrics")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("prometheus listener failed")
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("prometheus listener shutdown")
	}
}
