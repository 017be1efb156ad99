// Package config provides configuration management for go-workload-monitor.
package config

import "time"

// Config holds the run configuration. It is immutable once the run starts.
type Config struct {
	// Sampling
	Interval  time.Duration `json:"interval"`
	CPUWindow time.Duration `json:"cpu_window"` // system CPU measurement window
	OutFile   string        `json:"outfile"`

	// Workload
	Command string        `json:"command"` // run via sh -c
	Args    []string      `json:"args"`    // trailing argv, run directly; wins over Command
	Timeout time.Duration `json:"timeout"` // 0 = disabled
	Grace   time.Duration `json:"grace"`

	// GPU
	GPUTool   string `json:"gpu_tool"`
	GPUDevice int    `json:"gpu_device"`

	// Observability
	Verbose     bool   `json:"verbose"`
	Quiet       bool   `json:"quiet"`
	LogFormat   string `json:"log_format"` // json, text
	MetricsAddr string `json:"metrics_addr"`

	// Diagnostics
	ConfigFile    string `json:"config_file"`
	SkipPreflight bool   `json:"skip_preflight"`
	NoSummary     bool   `json:"no_summary"`
	ShowVersion   bool   `json:"-"`

	// cpuWindowSet records an explicit --cpu-window or cpu_window key.
	cpuWindowSet bool
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:  30 * time.Second,
		CPUWindow: 200 * time.Millisecond,
		OutFile:   "monitor.log",

		Timeout: 0, // Disabled
		Grace:   2 * time.Second,

		GPUTool:   "nvidia-smi",
		GPUDevice: 0,

		LogFormat: "text",
	}
}

// EffectiveCPUWindow is the system CPU window the sampler uses. The
// default window is shortened to half the interval so that any positive
// interval works; an explicit window is used as given.
func (c *Config) EffectiveCPUWindow() time.Duration {
	if !c.cpuWindowSet && c.Interval > 0 && c.CPUWindow > c.Interval/2 {
		return c.Interval / 2
	}
	return c.CPUWindow
}

// HasWorkload reports whether a workload was given explicitly, either as
// trailing arguments or as a command string.
func (c *Config) HasWorkload() bool {
	return len(c.Args) > 0 || c.Command != ""
}
