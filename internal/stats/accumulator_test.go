package stats

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

func sampleAt(ts int64, cpu sampler.Value) sampler.Sample {
	s := sampler.Sample{Time: time.Unix(ts, 0)}
	s.Values[sampler.SystemCPU] = cpu
	s.Values[sampler.ProcGPUMem] = sampler.Of(0)
	return s
}

func TestAccumulator_Empty(t *testing.T) {
	a := NewAccumulator()

	if a.Span() != 0 {
		t.Errorf("empty accumulator span = %v, want 0", a.Span())
	}
	snap := a.Snapshot()
	if len(snap) != int(sampler.NumFields) {
		t.Fatalf("snapshot fields = %d, want %d", len(snap), sampler.NumFields)
	}
	for _, fs := range snap {
		if fs.Count != 0 || fs.Min != 0 || fs.Max != 0 {
			t.Errorf("%s: %+v, want zero stats", fs.Field, fs)
		}
	}
}

func TestAccumulator_Add(t *testing.T) {
	a := NewAccumulator()
	for i := 1; i <= 100; i++ {
		a.Add(sampleAt(int64(1000+i), sampler.Of(float64(i))))
	}
	a.Add(sampleAt(1200, sampler.Unavailable))

	if a.Span() != 199*time.Second {
		t.Errorf("Span() = %v, want 199s", a.Span())
	}

	snap := a.Snapshot()
	cpu := snap[sampler.SystemCPU]
	if cpu.Field != sampler.SystemCPU {
		t.Fatalf("snapshot order: got %s first", cpu.Field)
	}
	if cpu.Count != 100 || cpu.Unavailable != 1 {
		t.Errorf("count=%d unavailable=%d, want 100/1", cpu.Count, cpu.Unavailable)
	}
	if cpu.Min != 1 || cpu.Max != 100 {
		t.Errorf("min=%v max=%v, want 1/100", cpu.Min, cpu.Max)
	}
	if cpu.Mean != 50.5 {
		t.Errorf("mean = %v, want 50.5", cpu.Mean)
	}
	// t-digest quantiles are approximate.
	if math.Abs(cpu.P50-50.5) > 2 {
		t.Errorf("p50 = %v, want ~50.5", cpu.P50)
	}
	if math.Abs(cpu.P95-95) > 2 {
		t.Errorf("p95 = %v, want ~95", cpu.P95)
	}

	gpu := snap[sampler.ProcGPUMem]
	if gpu.Count != 101 || gpu.Max != 0 {
		t.Errorf("proc gpu: %+v, want 101 zero readings", gpu)
	}
	if util := snap[sampler.GPUUtil]; util.Count != 0 || util.Unavailable != 101 {
		t.Errorf("gpu util: %+v, want all unavailable", util)
	}
}

func TestFormatExitSummary(t *testing.T) {
	a := NewAccumulator()
	a.Add(sampleAt(1, sampler.Of(10)))
	a.Add(sampleAt(2, sampler.Of(30)))

	out := FormatExitSummary(a.Snapshot(), SummaryConfig{
		RunID:       "abc-123",
		Command:     "sleep 3",
		OutFile:     "monitor.log",
		Cause:       "completed",
		ExitStatus:  0,
		Duration:    3 * time.Second,
		Rows:        2,
		Span:        a.Span(),
		MetricsAddr: "127.0.0.1:9100",
	})

	for _, want := range []string{
		"exit summary",
		"sleep 3",
		"completed",
		"0 (clean)",
		"00:00:03",
		"monitor.log",
		"abc-123",
		"http://127.0.0.1:9100/metrics",
		"Sampled",
		"00:00:01",
		"sys_cpu_pct",
		"gpu_util_pct",
		"20.0",
		"N/A",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatExitSummary_NoSamples(t *testing.T) {
	out := FormatExitSummary(nil, SummaryConfig{Command: "true", Cause: "interrupted", ExitStatus: 143})
	if strings.Contains(out, "Per-column") {
		t.Error("table rendered without fields")
	}
	if !strings.Contains(out, "143 (SIGTERM)") {
		t.Errorf("summary missing exit label:\n%s", out)
	}
	if strings.Contains(out, "Run ID") || strings.Contains(out, "Metrics") || strings.Contains(out, "Sampled") {
		t.Errorf("optional rows rendered when empty:\n%s", out)
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, "(error)"},
		{127, "(command not found)"},
		{130, "(SIGINT)"},
		{137, "(SIGKILL)"},
		{143, "(SIGTERM)"},
		{42, ""},
	}
	for _, tt := range tests {
		if got := exitCodeLabel(tt.code); got != tt.want {
			t.Errorf("exitCodeLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
