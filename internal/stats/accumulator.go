// Package stats summarizes a run's samples per column and renders the
// exit report.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

// FieldStats summarizes one column over the run.
type FieldStats struct {
	Field       sampler.Field
	Count       int64 // available readings
	Unavailable int64 // N/A readings
	Min         float64
	Max         float64
	Mean        float64
	P50         float64
	P95         float64
}

type fieldAcc struct {
	digest      *tdigest.TDigest
	count       int64
	unavailable int64
	sum         float64
	min         float64
	max         float64
}

// Accumulator folds samples into per-field statistics.
type Accumulator struct {
	mu      sync.Mutex // TDigest is not thread-safe
	fields  [sampler.NumFields]fieldAcc
	samples int64
	first   time.Time
	last    time.Time
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	a := &Accumulator{}
	for i := range a.fields {
		a.fields[i] = fieldAcc{
			digest: tdigest.NewWithCompression(100), // ~100 centroids
			min:    math.Inf(1),
			max:    math.Inf(-1),
		}
	}
	return a
}

// Add records one sample.
func (a *Accumulator) Add(s sampler.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.samples == 0 {
		a.first = s.Time
	}
	a.last = s.Time
	a.samples++

	for _, f := range sampler.Fields() {
		fa := &a.fields[f]
		v, ok := s.Get(f).Float()
		if !ok {
			fa.unavailable++
			continue
		}
		fa.digest.Add(v, 1)
		fa.count++
		fa.sum += v
		fa.min = math.Min(fa.min, v)
		fa.max = math.Max(fa.max, v)
	}
}

// Span returns the time between the first and last sample.
func (a *Accumulator) Span() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.samples < 2 {
		return 0
	}
	return a.last.Sub(a.first)
}

// Snapshot returns statistics for every field in column order. Fields
// with no available readings have zero Min/Max/Mean/P50/P95.
func (a *Accumulator) Snapshot() []FieldStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]FieldStats, 0, sampler.NumFields)
	for _, f := range sampler.Fields() {
		fa := &a.fields[f]
		fs := FieldStats{
			Field:       f,
			Count:       fa.count,
			Unavailable: fa.unavailable,
		}
		if fa.count > 0 {
			fs.Min = fa.min
			fs.Max = fa.max
			fs.Mean = fa.sum / float64(fa.count)
			fs.P50 = fa.digest.Quantile(0.50)
			fs.P95 = fa.digest.Quantile(0.95)
		}
		out = append(out, fs)
	}
	return out
}
