package model

import "time"

// ScanKind tells whether a snapshot came from a full enumeration or an
// incremental refresh of previously known processes.
type ScanKind int

const (
	ScanFull ScanKind = iota
	ScanIncremental
)

func (k ScanKind) String() string {
	switch k {
	case ScanFull:
		return "full"
	case ScanIncremental:
		return "incremental"
	}
	return "unknown"
}

// Snapshot holds one atomic point-in-time capture of system and process metrics.
// It must not be modified after the sampler publishes it.
type Snapshot struct {
	Timestamp         time.Time       `json:"timestamp"`
	Kind              ScanKind        `json:"kind"`
	SystemCPUPercent  float64         `json:"system_cpu_percent"`
	SystemMemPercent  float64         `json:"system_mem_percent"`
	MemTotalBytes     uint64          `json:"mem_total_bytes"`
	MemAvailableBytes uint64          `json:"mem_available_bytes"`
	CoreCount         int             `json:"core_count"`
	Skipped           int             `json:"skipped"` // per-process reads dropped during the scan
	Processes         []ProcessSample `json:"processes"`
}

// ProcessSample is one process as seen by a single scan.
// CPUPercent is normalized to system-wide scale (0-100 across all cores).
type ProcessSample struct {
	PID         int     `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
}
