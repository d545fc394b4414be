package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// HostSource reads the local host through gopsutil.
//
// gopsutil computes a process's cpu% against the previous call on the same
// *process.Process, so handles are cached by pid and pruned on every full
// enumeration. The first reading of a new pid is 0.
//
// A handle also caches the process name, so each full enumeration checks the
// create time and replaces the handle when the pid was reused.
type HostSource struct {
	mu    sync.Mutex
	procs map[int32]handle
	cores int
}

type handle struct {
	p       *process.Process
	created int64 // ms since epoch
}

// NewHostSource creates a source for the local host.
func NewHostSource() *HostSource {
	return &HostSource{procs: make(map[int32]handle)}
}

// SystemCPUPercent returns total CPU busy percent since the previous call.
func (h *HostSource) SystemCPUPercent(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("read cpu percent: %w", err)
	}
	if len(pct) == 0 {
		return 0, fmt.Errorf("read cpu percent: no data")
	}
	return pct[0], nil
}

func (h *HostSource) SystemMemory(ctx context.Context) (MemoryStat, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStat{}, fmt.Errorf("read virtual memory: %w", err)
	}
	return MemoryStat{Total: vm.Total, Available: vm.Available, UsedPercent: vm.UsedPercent}, nil
}

// CoreCount returns the logical CPU count, cached after the first success.
func (h *HostSource) CoreCount(ctx context.Context) (int, error) {
	h.mu.Lock()
	cores := h.cores
	h.mu.Unlock()
	if cores > 0 {
		return cores, nil
	}
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("count cpus: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("count cpus: got %d", n)
	}
	h.mu.Lock()
	h.cores = n
	h.mu.Unlock()
	return n, nil
}

func (h *HostSource) ListProcesses(ctx context.Context) ([]ProcessReading, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pids: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[int32]handle, len(pids))
	out := make([]ProcessReading, 0, len(pids))
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hd, err := h.current(ctx, pid)
		if err != nil {
			out = append(out, ProcessReading{PID: int(pid), Err: classify(err)})
			continue
		}
		r := readFull(ctx, hd.p)
		if r.Err == nil {
			seen[pid] = hd
		}
		out = append(out, r)
	}
	h.procs = seen
	return out, nil
}

// current returns the cached handle for pid while its create time still
// matches, or a fresh one.
func (h *HostSource) current(ctx context.Context, pid int32) (handle, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return handle{}, err
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return handle{}, err
	}
	if hd, ok := h.procs[pid]; ok && hd.created == created {
		return hd, nil
	}
	return handle{p: p, created: created}, nil
}

func (h *HostSource) ReadProcess(ctx context.Context, pid int) (ProcessReading, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hd, ok := h.procs[int32(pid)]
	if !ok {
		var err error
		hd, err = h.current(ctx, int32(pid))
		if err != nil {
			return ProcessReading{PID: pid}, classify(err)
		}
		h.procs[int32(pid)] = hd
	}
	pct, err := hd.p.PercentWithContext(ctx, 0)
	if err != nil {
		delete(h.procs, int32(pid))
		return ProcessReading{PID: pid}, classify(err)
	}
	return ProcessReading{PID: pid, CPUPercentRaw: pct}, nil
}

// Terminate sends SIGTERM to pid.
func (h *HostSource) Terminate(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return classify(err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("terminate %d: %w", pid, classify(err))
	}
	return nil
}

func readFull(ctx context.Context, p *process.Process) ProcessReading {
	r := ProcessReading{PID: int(p.Pid)}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		r.Err = classify(err)
		return r
	}
	r.Name = name
	pct, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		r.Err = classify(err)
		return r
	}
	r.CPUPercentRaw = pct
	mi, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		r.Err = classify(err)
		return r
	}
	if mi != nil {
		r.MemoryBytes = mi.RSS
	}
	return r
}

// classify maps gopsutil and os errors onto ErrNotFound / ErrAccessDenied.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, syscall.ESRCH):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, os.ErrPermission),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.EACCES):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return err
}
