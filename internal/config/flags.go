package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// secondsValue is a pflag.Value for durations given either as plain
// seconds ("30", "1.5") or as Go durations ("30s", "250ms").
type secondsValue time.Duration

func newSecondsValue(p *time.Duration) *secondsValue {
	return (*secondsValue)(p)
}

func (s *secondsValue) String() string {
	return strconv.FormatFloat(time.Duration(*s).Seconds(), 'f', -1, 64)
}

func (s *secondsValue) Set(value string) error {
	d, err := ParseSeconds(value)
	if err != nil {
		return err
	}
	*s = secondsValue(d)
	return nil
}

func (s *secondsValue) Type() string {
	return "seconds"
}

// ParseSeconds parses a bare number of seconds or a Go duration string.
func ParseSeconds(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds value %q", value)
	}
	return d, nil
}

// ParseFlags parses command-line flags (without the program name) and
// returns a Config. A --config file, if given, supplies defaults that
// explicitly set flags override. Returns pflag.ErrHelp for -h/--help.
func ParseFlags(args []string) (*Config, error) {
	return parseFlags(args, os.Stderr)
}

func parseFlags(args []string, output io.Writer) (*Config, error) {
	// First pass finds --config; errors surface on the second pass.
	probe := DefaultConfig()
	probeSet := newFlagSet(probe, io.Discard)
	_ = probeSet.Parse(args)

	cfg := DefaultConfig()
	if probe.ConfigFile != "" {
		if err := LoadFile(probe.ConfigFile, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = probe.ConfigFile
	}

	fs := newFlagSet(cfg, output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.Changed("cpu-window") {
		cfg.cpuWindowSet = true
	}

	// Everything after the first positional argument (or after "--")
	// is the workload argv.
	if rest := fs.Args(); len(rest) > 0 {
		cfg.Args = append([]string(nil), rest...)
	}

	return cfg, nil
}

// newFlagSet binds every flag to a field of cfg. Flag defaults are the
// current field values, so binding onto a file-loaded Config makes the
// file the default layer.
func newFlagSet(cfg *Config, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("go-workload-monitor", pflag.ContinueOnError)
	fs.SetOutput(output)
	// The first non-flag argument starts the workload argv, so
	// "go-workload-monitor -i 1 python train.py --epochs 3" works
	// without a "--" separator.
	fs.SetInterspersed(false)

	// Sampling
	fs.VarP(newSecondsValue(&cfg.Interval), "interval", "i", "Sampling period in seconds")
	fs.StringVarP(&cfg.OutFile, "outfile", "o", cfg.OutFile, "Log file (appended to if it exists)")
	fs.DurationVar(&cfg.CPUWindow, "cpu-window", cfg.CPUWindow, "Measurement window for system CPU utilization")

	// Workload
	fs.StringVarP(&cfg.Command, "command", "c", cfg.Command, "Workload command (run with sh -c)")
	fs.VarP(newSecondsValue(&cfg.Timeout), "timeout", "t", "Seconds before the workload is terminated (0 = disabled)")
	fs.DurationVar(&cfg.Grace, "grace", cfg.Grace, "Wait between SIGTERM and SIGKILL during cleanup")

	// GPU
	fs.StringVar(&cfg.GPUTool, "gpu-smi", cfg.GPUTool, "GPU management utility")
	fs.IntVar(&cfg.GPUDevice, "gpu-device", cfg.GPUDevice, "GPU index for device-wide figures")

	// Observability
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Debug logging")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "Only log warnings and errors")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "text" or "json"`)
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus listen address (empty = disabled)")

	// Diagnostics
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML file with default settings")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip the startup checks report")
	fs.BoolVar(&cfg.NoSummary, "no-summary", cfg.NoSummary, "Do not print the exit summary")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(output, `go-workload-monitor - run a command and sample its resource usage

Usage:
  go-workload-monitor [flags] [--] [command [args...]]

Sampling:
`)
		printFlagCategory(output, fs, []string{"interval", "outfile", "cpu-window"})

		fmt.Fprintf(output, "\nWorkload:\n")
		printFlagCategory(output, fs, []string{"command", "timeout", "grace"})

		fmt.Fprintf(output, "\nGPU:\n")
		printFlagCategory(output, fs, []string{"gpu-smi", "gpu-device"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(output, fs, []string{"verbose", "quiet", "log-format", "metrics-addr"})

		fmt.Fprintf(output, "\nDiagnostics:\n")
		printFlagCategory(output, fs, []string{"config", "skip-preflight", "no-summary", "version"})

		fmt.Fprintf(output, `
Without a command, the stress-ng fallback workload is used when installed.

Examples:
  # Sample every second while a training job runs, stop it after an hour
  go-workload-monitor -i 1 -t 3600 -o train.log -- python train.py

  # Command string form
  go-workload-monitor --interval 5 --command "make -j8 && ./bench"

`)
	}

	return fs
}

// printFlagCategory prints the usage of the named flags, in order.
func printFlagCategory(w io.Writer, fs *pflag.FlagSet, names []string) {
	subset := pflag.NewFlagSet("category", pflag.ContinueOnError)
	for _, name := range names {
		if f := fs.Lookup(name); f != nil {
			subset.AddFlag(f)
		}
	}
	subset.SortFlags = false
	fmt.Fprint(w, subset.FlagUsages())
}
