package collector

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the process exited between enumeration and read.
	ErrNotFound = errors.New("process not found")
	// ErrAccessDenied means the process exists but its stats are not readable.
	ErrAccessDenied = errors.New("access denied")
)

// MemoryStat is host-wide memory usage.
type MemoryStat struct {
	Total       uint64
	Available   uint64
	UsedPercent float64
}

// ProcessReading is one per-process read. CPUPercentRaw is per-core scaled
// (100 = one full core) and must be divided by the core count to get a
// system-wide share. A non-nil Err marks a read that failed for this pid only.
type ProcessReading struct {
	PID           int
	Name          string
	CPUPercentRaw float64
	MemoryBytes   uint64
	Err           error
}

// Source is the host metrics API the sampler consumes.
type Source interface {
	SystemCPUPercent(ctx context.Context) (float64, error)
	SystemMemory(ctx context.Context) (MemoryStat, error)
	CoreCount(ctx context.Context) (int, error)
	// ListProcesses enumerates every process. A failure for a single pid is
	// reported in that reading's Err; the returned error is for the
	// enumeration as a whole.
	ListProcesses(ctx context.Context) ([]ProcessReading, error)
	// ReadProcess re-reads the cpu% of one pid; Name and MemoryBytes are left
	// empty. It returns ErrNotFound or ErrAccessDenied (possibly wrapped) for
	// per-process failures.
	ReadProcess(ctx context.Context, pid int) (ProcessReading, error)
}

// Terminator signals processes.
type Terminator interface {
	Terminate(ctx context.Context, pid int) error
}
