package sampler

import (
	"context"
	"time"

	"github.com/prometheus/procfs"
)

const bytesPerMB = 1024 * 1024

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// systemCPU measures host-wide busy percentage over a short window.
type systemCPU struct {
	fs     procfs.FS
	window time.Duration
	wait   waitFunc
}

func newSystemCPU(fs procfs.FS, window time.Duration) *systemCPU {
	return &systemCPU{fs: fs, window: window, wait: sleepCtx}
}

func (s *systemCPU) Field() Field { return SystemCPU }

func (s *systemCPU) Read(ctx context.Context, _ int) Value {
	before, err := s.fs.Stat()
	if err != nil {
		return Unavailable
	}
	if err := s.wait(ctx, s.window); err != nil {
		return Unavailable
	}
	after, err := s.fs.Stat()
	if err != nil {
		return Unavailable
	}
	return busyPercent(before.CPUTotal, after.CPUTotal)
}

// busyPercent is 100 minus the idle share of the elapsed CPU time.
// Iowait counts as idle. Guest time is already part of user time.
func busyPercent(a, b procfs.CPUStat) Value {
	idle := (b.Idle + b.Iowait) - (a.Idle + a.Iowait)
	total := cpuTotal(b) - cpuTotal(a)
	if total <= 0 {
		return Unavailable
	}
	pct := 100 * (1 - idle/total)
	return Of(clampPercent(pct, 100))
}

func cpuTotal(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}

func clampPercent(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// systemMemory reports used memory in MB.
type systemMemory struct {
	fs procfs.FS
}

func newSystemMemory(fs procfs.FS) *systemMemory {
	return &systemMemory{fs: fs}
}

func (s *systemMemory) Field() Field { return SystemMem }

func (s *systemMemory) Read(context.Context, int) Value {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return Unavailable
	}
	usedKB, ok := usedMemoryKB(mi)
	if !ok {
		return Unavailable
	}
	return Of(float64(usedKB) / 1024)
}

// usedMemoryKB prefers MemAvailable and falls back to the classic
// free+buffers+cached estimate on kernels that lack it.
func usedMemoryKB(mi procfs.Meminfo) (uint64, bool) {
	if mi.MemTotal == nil {
		return 0, false
	}
	total := *mi.MemTotal
	if mi.MemAvailable != nil {
		return saturatingSub(total, *mi.MemAvailable), true
	}
	if mi.MemFree == nil {
		return 0, false
	}
	free := *mi.MemFree
	if mi.Buffers != nil {
		free += *mi.Buffers
	}
	if mi.Cached != nil {
		free += *mi.Cached
	}
	return saturatingSub(total, free), true
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
