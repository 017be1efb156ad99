// Package timeseries computes load-average style means per log column
// over 1m, 5m and 15m.
//
// Each window is an exponentially weighted moving average, so no sample
// is retained: an update costs a few multiplications per field.
//
// Thread-safe: Update acquires the write lock, Means the read lock.
package timeseries

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

const (
	Window1m  = 1 * time.Minute
	Window5m  = 5 * time.Minute
	Window15m = 15 * time.Minute
)

// Windows lists the averaging windows, shortest first.
var Windows = [...]time.Duration{Window1m, Window5m, Window15m}

// Means holds one average per log column.
type Means [sampler.NumFields]sampler.Value

// Get returns the average for one field.
func (m Means) Get(f sampler.Field) sampler.Value {
	return m[f]
}

// LoadAverage folds samples into per-field moving averages.
//
// Usage:
//
//	load := NewLoadAverage()
//	load.Update(sample) // once per tick
//	m := load.Means(timeseries.Window5m)
type LoadAverage struct {
	mu sync.RWMutex

	means    [len(Windows)][sampler.NumFields]float64 // indexed like Windows
	lastSeen [sampler.NumFields]time.Time  // zero until the first reading
}

// NewLoadAverage creates an empty LoadAverage.
func NewLoadAverage() *LoadAverage {
	return &LoadAverage{}
}

// Update folds one sample in. The first reading of a field seeds every
// window; later readings decay the old mean by exp(-dt/window), where dt
// is the time since that field's previous reading. Unavailable readings
// leave the field untouched.
func (l *LoadAverage) Update(s sampler.Sample) {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for f, v := range s.Values {
		x, ok := v.Float()
		if !ok {
			continue
		}

		if l.lastSeen[f].IsZero() {
			for w := range Windows {
				l.means[w][f] = x
			}
			l.lastSeen[f] = ts
			continue
		}

		dt := ts.Sub(l.lastSeen[f])
		if dt <= 0 {
			continue
		}
		for w, window := range Windows {
			decay := math.Exp(-dt.Seconds() / window.Seconds())
			l.means[w][f] = l.means[w][f]*decay + x*(1-decay)
		}
		l.lastSeen[f] = ts
	}
}

// Means returns the averages for one of Windows. Fields never read, and
// windows not in Windows, are Unavailable.
func (l *LoadAverage) Means(window time.Duration) Means {
	var m Means

	idx := -1
	for i, w := range Windows {
		if w == window {
			idx = i
		}
	}
	if idx < 0 {
		return m
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for f := range m {
		if !l.lastSeen[f].IsZero() {
			m[f] = sampler.Of(l.means[idx][f])
		}
	}
	return m
}

// WindowLabel renders a window the way metrics label it ("1m", "15m").
func WindowLabel(d time.Duration) string {
	if d%time.Minute == 0 {
		return strconv.Itoa(int(d/time.Minute)) + "m"
	}
	return d.String()
}
