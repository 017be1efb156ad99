package sampler

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/procfs"
)

// Source reads one field. Read must not block beyond its own bounded
// measurement window and never fails: problems yield Unavailable.
// System-wide sources ignore pid.
type Source interface {
	Field() Field
	Read(ctx context.Context, pid int) Value
}

// Config configures a Set.
type Config struct {
	Caps Capabilities

	// CPUWindow is the system CPU measurement window.
	CPUWindow time.Duration

	// FS overrides the procfs mount (tests). Nil uses /proc.
	FS *procfs.FS

	// Logger for startup notices and per-tick debug output.
	Logger *slog.Logger
}

// Set is the full collection of sources, one per field.
type Set struct {
	sources [NumFields]Source
	logger  *slog.Logger
}

// NewSet builds the sources allowed by the capabilities. Missing
// tooling is logged once here and never retried.
func NewSet(cfg Config) *Set {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Set{logger: logger}
	for _, f := range Fields() {
		s.sources[f] = unavailableSource{field: f}
	}

	if cfg.Caps.ProcFS {
		fs := cfg.FS
		if fs == nil {
			if def, err := procfs.NewDefaultFS(); err == nil {
				fs = &def
			}
		}
		if fs != nil {
			s.sources[SystemCPU] = newSystemCPU(*fs, cfg.CPUWindow)
			s.sources[SystemMem] = newSystemMemory(*fs)
			s.sources[ProcCPU] = newProcessCPU(*fs)
			s.sources[ProcMem] = newProcessMemory(*fs)
		}
	} else {
		logger.Warn("procfs_unavailable",
			"effect", "system and process CPU/memory will be N/A",
		)
	}

	if cfg.Caps.GPU {
		gpu := newGPUQuery(cfg.Caps.GPUTool, cfg.Caps.GPUDevice)
		s.sources[GPUUtil] = gpuDeviceSource{query: gpu, field: GPUUtil, property: "utilization.gpu"}
		s.sources[GPUMem] = gpuDeviceSource{query: gpu, field: GPUMem, property: "memory.used"}
		s.sources[ProcGPUMem] = gpuProcessSource{query: gpu}
	} else {
		var gpuFields []string
		for _, f := range Fields() {
			if f.IsGPU() {
				gpuFields = append(gpuFields, f.String())
			}
		}
		logger.Info("gpu_tool_unavailable",
			"effect", "GPU fields will be N/A",
			"fields", gpuFields,
		)
	}

	return s
}

// Replace swaps the source for its field. Intended for tests and for
// callers that need a custom probe.
func (s *Set) Replace(src Source) {
	f := src.Field()
	if f < 0 || f >= NumFields {
		return
	}
	s.sources[f] = src
}

// Collect reads every source once and returns the sample.
func (s *Set) Collect(ctx context.Context, pid int) Sample {
	sample := Sample{Time: time.Now()}
	for f, src := range s.sources {
		v := src.Read(ctx, pid)
		sample.Values[f] = v
		if !v.Available() {
			s.logger.Debug("metric_unavailable", "field", Field(f).String(), "pid", pid)
		}
	}
	return sample
}

// unavailableSource stands in for a source whose tooling is missing.
type unavailableSource struct {
	field Field
}

func (u unavailableSource) Field() Field { return u.field }

func (u unavailableSource) Read(context.Context, int) Value { return Unavailable }
