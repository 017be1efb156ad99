package supervisor

import (
	"math"
	"time"
)

// BackoffConfig holds the configuration for exponential backoff.
type BackoffConfig struct {
	Initial    time.Duration // Initial delay (default: 10ms)
	Max        time.Duration // Maximum delay (default: 250ms)
	Multiplier float64       // Multiplier for each attempt (default: 2)
}

// DefaultBackoffConfig returns the polling schedule used while waiting
// for a process group to drain.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    10 * time.Millisecond,
		Max:        250 * time.Millisecond,
		Multiplier: 2,
	}
}

// Backoff calculates exponential backoff delays.
type Backoff struct {
	config   BackoffConfig
	attempts int
}

// NewBackoff creates a new Backoff calculator.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{config: cfg}
}

// Next returns the next backoff delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current backoff delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	// initial * multiplier^attempts
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))

	if delay > float64(b.config.Max) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		delay = float64(b.config.Max)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}
