package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// processCPU reports the target's CPU usage as a percentage of one
// core. Consecutive reads for the same pid use the delta between them;
// the first read uses the lifetime average.
type processCPU struct {
	fs  procfs.FS
	now func() time.Time

	mu       sync.Mutex
	lastPID  int
	lastCPU  float64
	lastTime time.Time
}

func newProcessCPU(fs procfs.FS) *processCPU {
	return &processCPU{fs: fs, now: time.Now}
}

func (p *processCPU) Field() Field { return ProcCPU }

func (p *processCPU) Read(_ context.Context, pid int) Value {
	stat, ok := procStat(p.fs, pid)
	if !ok {
		return Unavailable
	}
	now := p.now()
	cpu := stat.CPUTime()

	p.mu.Lock()
	defer p.mu.Unlock()

	var pct float64
	if p.lastPID == pid && !p.lastTime.IsZero() {
		elapsed := now.Sub(p.lastTime).Seconds()
		if elapsed <= 0 {
			return Unavailable
		}
		pct = 100 * (cpu - p.lastCPU) / elapsed
	} else {
		started, err := stat.StartTime()
		if err != nil {
			return Unavailable
		}
		age := float64(now.UnixNano())/1e9 - started
		if age > 0 {
			pct = 100 * cpu / age
		}
	}

	p.lastPID = pid
	p.lastCPU = cpu
	p.lastTime = now

	if pct < 0 {
		pct = 0
	}
	return Of(pct)
}

// processMemory reports the target's resident set size in MB.
type processMemory struct {
	fs procfs.FS
}

func newProcessMemory(fs procfs.FS) *processMemory {
	return &processMemory{fs: fs}
}

func (p *processMemory) Field() Field { return ProcMem }

func (p *processMemory) Read(_ context.Context, pid int) Value {
	stat, ok := procStat(p.fs, pid)
	if !ok {
		return Unavailable
	}
	return Of(float64(stat.ResidentMemory()) / bytesPerMB)
}

// procStat reads /proc/<pid>/stat. Exited (zombie) processes count as
// gone.
func procStat(fs procfs.FS, pid int) (procfs.ProcStat, bool) {
	if pid <= 0 {
		return procfs.ProcStat{}, false
	}
	proc, err := fs.Proc(pid)
	if err != nil {
		return procfs.ProcStat{}, false
	}
	stat, err := proc.Stat()
	if err != nil {
		return procfs.ProcStat{}, false
	}
	if stat.State == "Z" || stat.State == "X" {
		return procfs.ProcStat{}, false
	}
	return stat, true
}
