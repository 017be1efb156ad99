package sampler

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// gpuQueryTimeout bounds every nvidia-smi invocation.
const gpuQueryTimeout = 5 * time.Second

// commandRunner runs a command and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// gpuQuery issues nvidia-smi queries.
type gpuQuery struct {
	tool    string
	device  int
	timeout time.Duration
	run     commandRunner
}

func newGPUQuery(tool string, device int) *gpuQuery {
	return &gpuQuery{
		tool:    tool,
		device:  device,
		timeout: gpuQueryTimeout,
		run:     execRunner,
	}
}

func (q *gpuQuery) exec(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	out, err := q.run(ctx, q.tool, args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", q.tool, args[0], err)
	}
	return out, nil
}

// deviceProperty reads one --query-gpu property for the configured device.
func (q *gpuQuery) deviceProperty(ctx context.Context, property string) Value {
	out, err := q.exec(ctx,
		"--query-gpu="+property,
		"--format=csv,noheader,nounits",
		"-i", strconv.Itoa(q.device),
	)
	if err != nil {
		return Unavailable
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return parseGPUNumber(line)
}

// processMemory sums used_memory over every compute app owned by pid,
// across all devices.
func (q *gpuQuery) processMemory(ctx context.Context, pid int) Value {
	out, err := q.exec(ctx,
		"--query-compute-apps=pid,used_memory",
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		return Unavailable
	}
	return sumComputeApps(string(out), pid)
}

// sumComputeApps parses "pid, used_memory" rows. A pid with no rows uses
// zero GPU memory, which is reported as 0 rather than N/A.
func sumComputeApps(out string, pid int) Value {
	var total float64
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pidField, memField, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		rowPID, err := strconv.Atoi(strings.TrimSpace(pidField))
		if err != nil || rowPID != pid {
			continue
		}
		if mem, ok := parseGPUNumber(memField).Float(); ok {
			total += mem
		}
	}
	return Of(total)
}

// parseGPUNumber accepts a bare number. Bracketed answers such as
// "[N/A]" or "[Not Supported]" are unavailable.
func parseGPUNumber(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "[") {
		return Unavailable
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unavailable
	}
	return Of(v)
}

type gpuDeviceSource struct {
	query    *gpuQuery
	field    Field
	property string
}

func (g gpuDeviceSource) Field() Field { return g.field }

func (g gpuDeviceSource) Read(ctx context.Context, _ int) Value {
	return g.query.deviceProperty(ctx, g.property)
}

type gpuProcessSource struct {
	query *gpuQuery
}

func (g gpuProcessSource) Field() Field { return ProcGPUMem }

func (g gpuProcessSource) Read(ctx context.Context, pid int) Value {
	if pid <= 0 {
		return Unavailable
	}
	return g.query.processMemory(ctx, pid)
}
