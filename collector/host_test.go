package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v4/process"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not running", process.ErrorProcessNotRunning, ErrNotFound},
		{"missing proc file", fmt.Errorf("open /proc/1/stat: %w", os.ErrNotExist), ErrNotFound},
		{"permission", fmt.Errorf("open /proc/1/io: %w", os.ErrPermission), ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	other := errors.New("boom")
	if got := classify(other); got != other {
		t.Fatalf("unrelated error rewritten: %v", got)
	}
	if classify(nil) != nil {
		t.Fatal("classify(nil) must be nil")
	}
}

func TestHostSourceReadsSelf(t *testing.T) {
	ctx := context.Background()
	src := NewHostSource()

	cores, err := src.CoreCount(ctx)
	if err != nil || cores <= 0 {
		t.Fatalf("CoreCount = %d, %v", cores, err)
	}

	procs, err := src.ListProcesses(ctx)
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	self := os.Getpid()
	found := false
	for _, r := range procs {
		if r.PID == self && r.Err == nil {
			found = true
			if r.MemoryBytes == 0 {
				t.Errorf("own RSS reported as 0")
			}
		}
	}
	if !found {
		t.Fatalf("own pid %d missing from enumeration", self)
	}

	if _, err := src.ReadProcess(ctx, self); err != nil {
		t.Fatalf("ReadProcess(self): %v", err)
	}
}

func TestHostSourceReplacesReusedPID(t *testing.T) {
	ctx := context.Background()
	self := int32(os.Getpid())
	created, err := process.NewProcess(self)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := created.CreateTimeWithContext(ctx)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		created int64
		reuse   bool
	}{
		{"same process", ct, true},
		{"pid reused", ct - 60_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cached := &process.Process{Pid: self}
			src := NewHostSource()
			src.procs[self] = handle{p: cached, created: tt.created}

			if _, err := src.ListProcesses(ctx); err != nil {
				t.Fatalf("ListProcesses: %v", err)
			}
			hd, ok := src.procs[self]
			if !ok {
				t.Fatal("own pid dropped from the cache")
			}
			if (hd.p == cached) != tt.reuse {
				t.Fatalf("cached handle kept = %v, want %v", hd.p == cached, tt.reuse)
			}
			if hd.created != ct {
				t.Fatalf("created = %d, want %d", hd.created, ct)
			}
		})
	}
}

func TestHostSourceReadProcessSkipsMemory(t *testing.T) {
	r, err := NewHostSource().ReadProcess(context.Background(), os.Getpid())
	if err != nil {
		t.Fatalf("ReadProcess(self): %v", err)
	}
	if r.Name != "" || r.MemoryBytes != 0 {
		t.Fatalf("incremental read = %+v, want cpu only", r)
	}
}
