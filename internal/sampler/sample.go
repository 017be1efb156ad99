// Package sampler implements the metric sources sampled on every tick:
// system CPU and memory, device-wide GPU utilization and memory, and the
// workload's own CPU, resident memory and GPU memory.
//
// Sources never fail. Missing tooling or a vanished process produces
// Unavailable, which the log renders as "N/A".
package sampler

import (
	"strconv"
	"time"
)

// Value is a decimal reading or the Unavailable sentinel. The zero Value
// is Unavailable, which is distinct from a real zero measurement.
type Value struct {
	v  float64
	ok bool
}

// Unavailable marks a reading that could not be taken.
var Unavailable = Value{}

// NotAvailable is how Unavailable is rendered in the log.
const NotAvailable = "N/A"

// Of wraps a measured value.
func Of(v float64) Value {
	return Value{v: v, ok: true}
}

// Available reports whether the value holds a measurement.
func (v Value) Available() bool {
	return v.ok
}

// Float returns the measurement and whether there is one.
func (v Value) Float() (float64, bool) {
	return v.v, v.ok
}

// String renders the value with one decimal, or N/A.
func (v Value) String() string {
	if !v.ok {
		return NotAvailable
	}
	return strconv.FormatFloat(v.v, 'f', 1, 64)
}

// Field identifies one column of a sample.
type Field int

const (
	SystemCPU  Field = iota // system CPU utilization, %
	SystemMem               // system memory used, MB
	GPUUtil                 // GPU utilization, %
	GPUMem                  // GPU memory used, MB
	ProcCPU                 // workload CPU utilization, % of one core
	ProcMem                 // workload resident memory, MB
	ProcGPUMem              // workload GPU memory, MB

	NumFields
)

var fieldNames = [NumFields]string{
	SystemCPU:  "sys_cpu_pct",
	SystemMem:  "sys_mem_mb",
	GPUUtil:    "gpu_util_pct",
	GPUMem:     "gpu_mem_mb",
	ProcCPU:    "proc_cpu_pct",
	ProcMem:    "proc_mem_mb",
	ProcGPUMem: "proc_gpu_mem_mb",
}

// String returns the column name of the field.
func (f Field) String() string {
	if f < 0 || f >= NumFields {
		return "unknown"
	}
	return fieldNames[f]
}

// IsGPU reports whether the field depends on the GPU management utility.
func (f Field) IsGPU() bool {
	return f == GPUUtil || f == GPUMem || f == ProcGPUMem
}

// Fields returns all fields in column order.
func Fields() []Field {
	fields := make([]Field, NumFields)
	for i := range fields {
		fields[i] = Field(i)
	}
	return fields
}

// Sample is one tick's worth of readings. It is immutable once built.
type Sample struct {
	Time   time.Time
	Values [NumFields]Value
}

// Get returns the value of a field.
func (s Sample) Get(f Field) Value {
	if f < 0 || f >= NumFields {
		return Unavailable
	}
	return s.Values[f]
}
