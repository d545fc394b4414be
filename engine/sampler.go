package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftahirops/ptop/collector"
	"github.com/ftahirops/ptop/model"
)

const (
	DefaultInterval         = 500 * time.Millisecond
	DefaultFullScanInterval = 2 * time.Second
	DefaultIncrementalLimit = 100
)

// SamplerConfig controls the scan cadence.
type SamplerConfig struct {
	Interval         time.Duration // pause between scans
	FullScanInterval time.Duration // minimum time between full enumerations
	IncrementalLimit int           // cached processes refreshed by an incremental scan
	Backoff          time.Duration // pause after a failed scan
}

// DefaultSamplerConfig returns the stock cadence.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Interval:         DefaultInterval,
		FullScanInterval: DefaultFullScanInterval,
		IncrementalLimit: DefaultIncrementalLimit,
		Backoff:          2 * DefaultInterval,
	}
}

func (c SamplerConfig) withDefaults() SamplerConfig {
	d := DefaultSamplerConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.FullScanInterval <= 0 {
		c.FullScanInterval = d.FullScanInterval
	}
	if c.IncrementalLimit <= 0 {
		c.IncrementalLimit = d.IncrementalLimit
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * c.Interval
	}
	return c
}

// SkipReason says why a process was left out of a snapshot.
type SkipReason int

const (
	SkipExited SkipReason = iota
	SkipDenied
	SkipIdle
	SkipInvalid
	SkipError
)

func (r SkipReason) String() string {
	switch r {
	case SkipExited:
		return "exited"
	case SkipDenied:
		return "denied"
	case SkipIdle:
		return "idle"
	case SkipInvalid:
		return "invalid"
	}
	return "error"
}

func skipReasonOf(err error) SkipReason {
	switch {
	case errors.Is(err, collector.ErrNotFound):
		return SkipExited
	case errors.Is(err, collector.ErrAccessDenied):
		return SkipDenied
	}
	return SkipError
}

// idle pseudo-processes reported by some platforms
var idleNames = map[string]bool{
	"idle":                true,
	"system idle process": true,
}

// itemResult is the outcome of reading one process: a sample or a skip.
type itemResult struct {
	sample model.ProcessSample
	skip   SkipReason
	err    error
	ok     bool
}

// Sampler produces snapshots on a fixed cadence, alternating expensive
// full scans with cheap incremental refreshes of known processes.
type Sampler struct {
	src     collector.Source
	out     *SnapshotQueue
	cfg     SamplerConfig
	clock   Clock
	metrics *Metrics
	log     zerolog.Logger

	// owned by the sampler goroutine
	known    []model.ProcessSample
	lastFull time.Time
	fullDone bool
}

// SamplerOption customizes a Sampler.
type SamplerOption func(*Sampler)

// WithClock replaces the wall clock.
func WithClock(c Clock) SamplerOption { return func(s *Sampler) { s.clock = c } }

// WithMetrics records scan counters into m.
func WithMetrics(m *Metrics) SamplerOption { return func(s *Sampler) { s.metrics = m } }

// WithLogger sets the sampler's logger.
func WithLogger(l zerolog.Logger) SamplerOption { return func(s *Sampler) { s.log = l } }

// NewSampler creates a sampler publishing into out.
func NewSampler(src collector.Source, out *SnapshotQueue, cfg SamplerConfig, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		src:   src,
		out:   out,
		cfg:   cfg.withDefaults(),
		clock: realClock{},
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Task is a handle on a running sampler loop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the loop and waits up to timeout for the current iteration
// to finish. It returns false if the loop was still running at the timeout.
func (t *Task) Stop(timeout time.Duration) bool {
	t.cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed when the loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Start runs the sampling loop in a new goroutine until ctx is cancelled
// or the returned Task is stopped. A Sampler must be started only once.
func (s *Sampler) Start(ctx context.Context) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		s.run(ctx)
	}()
	return t
}

func (s *Sampler) run(ctx context.Context) {
	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("full_scan_interval", s.cfg.FullScanInterval).
		Int("incremental_limit", s.cfg.IncrementalLimit).
		Msg("sampler started")
	defer s.log.Info().Msg("sampler stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		wait := s.cfg.Interval
		snap, err := s.scan(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			s.metrics.scanFailed()
			s.log.Error().Err(err).Dur("backoff", s.cfg.Backoff).Msg("scan failed")
			wait = s.cfg.Backoff
		default:
			s.out.Push(snap)
			s.metrics.scanDone(snap.Kind)
			s.metrics.publishedSnapshot(s.out.Len())
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}
	}
}

// scan performs one iteration. A panic anywhere in the scan is turned into
// a scan-level error so the loop survives it.
func (s *Sampler) scan(ctx context.Context) (snap *model.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, fmt.Errorf("scan panic: %v", r)
		}
	}()

	if s.dueFull() {
		return s.fullScan(ctx)
	}
	return s.incrementalScan(ctx)
}

func (s *Sampler) dueFull() bool {
	return !s.fullDone || s.clock.Now().Sub(s.lastFull) >= s.cfg.FullScanInterval
}

// system reads the host-wide figures shared by both scan kinds.
func (s *Sampler) system(ctx context.Context, kind model.ScanKind) (*model.Snapshot, int, error) {
	now := s.clock.Now()
	cpuPct, err := s.src.SystemCPUPercent(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("system cpu: %w", err)
	}
	mem, err := s.src.SystemMemory(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("system memory: %w", err)
	}
	cores, err := s.src.CoreCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("core count: %w", err)
	}
	if cores < 1 {
		cores = 1
	}
	return &model.Snapshot{
		Timestamp:         now,
		Kind:              kind,
		SystemCPUPercent:  cpuPct,
		SystemMemPercent:  mem.UsedPercent,
		MemTotalBytes:     mem.Total,
		MemAvailableBytes: mem.Available,
		CoreCount:         cores,
	}, cores, nil
}

func (s *Sampler) fullScan(ctx context.Context) (*model.Snapshot, error) {
	snap, cores, err := s.system(ctx, model.ScanFull)
	if err != nil {
		return nil, err
	}
	readings, err := s.src.ListProcesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	seen := make(map[int]bool, len(readings))
	procs := make([]model.ProcessSample, 0, len(readings))
	for _, r := range readings {
		res := fromReading(r, cores)
		if res.ok && seen[r.PID] {
			res = itemResult{skip: SkipInvalid, err: errors.New("duplicate pid")}
		}
		if !res.ok {
			s.noteSkip(&snap.Skipped, r.PID, res)
			continue
		}
		seen[r.PID] = true
		procs = append(procs, res.sample)
	}
	sortByCPU(procs)

	snap.Processes = procs
	s.known = append(s.known[:0:0], procs...)
	s.lastFull = s.clock.Now()
	s.fullDone = true
	return snap, nil
}

func (s *Sampler) incrementalScan(ctx context.Context) (*model.Snapshot, error) {
	snap, cores, err := s.system(ctx, model.ScanIncremental)
	if err != nil {
		return nil, err
	}

	limit := s.cfg.IncrementalLimit
	if limit > len(s.known) {
		limit = len(s.known)
	}
	procs := make([]model.ProcessSample, 0, limit)
	failed := make(map[int]bool)
	for _, k := range s.known[:limit] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.src.ReadProcess(ctx, k.PID)
		if err != nil {
			res := itemResult{skip: skipReasonOf(err), err: err}
			s.noteSkip(&snap.Skipped, k.PID, res)
			failed[k.PID] = true
			continue
		}
		cpu := r.CPUPercentRaw / float64(cores)
		if math.IsNaN(cpu) || math.IsInf(cpu, 0) {
			s.noteSkip(&snap.Skipped, k.PID, itemResult{skip: SkipInvalid, err: errors.New("cpu not finite")})
			continue
		}
		k.CPUPercent = cpu
		procs = append(procs, k)
	}
	sortByCPU(procs)

	if len(failed) > 0 {
		kept := s.known[:0]
		for _, k := range s.known {
			if !failed[k.PID] {
				kept = append(kept, k)
			}
		}
		s.known = kept
	}
	snap.Processes = procs
	return snap, nil
}

// fromReading turns one enumerated process into a sample or a skip.
func fromReading(r collector.ProcessReading, cores int) itemResult {
	if r.Err != nil {
		return itemResult{skip: skipReasonOf(r.Err), err: r.Err}
	}
	if idleNames[strings.ToLower(strings.TrimSpace(r.Name))] {
		return itemResult{skip: SkipIdle}
	}
	if r.PID <= 0 {
		return itemResult{skip: SkipInvalid, err: errors.New("non-positive pid")}
	}
	cpu := r.CPUPercentRaw / float64(cores)
	if math.IsNaN(cpu) || math.IsInf(cpu, 0) {
		return itemResult{skip: SkipInvalid, err: errors.New("cpu not finite")}
	}
	return itemResult{
		ok: true,
		sample: model.ProcessSample{
			PID:         r.PID,
			Name:        r.Name,
			CPUPercent:  cpu,
			MemoryBytes: r.MemoryBytes,
		},
	}
}

func (s *Sampler) noteSkip(count *int, pid int, res itemResult) {
	*count++
	s.metrics.skipped(res.skip)
	ev := s.log.Debug().Int("pid", pid).Str("reason", res.skip.String())
	if res.err != nil {
		ev = ev.Err(res.err)
	}
	ev.Msg("process skipped")
}

func sortByCPU(procs []model.ProcessSample) {
	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].CPUPercent > procs[j].CPUPercent
	})
}
