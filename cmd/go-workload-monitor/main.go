// Package main provides the go-workload-monitor CLI entry point.
//
// go-workload-monitor runs a workload in its own process group, samples
// system, process and GPU utilisation into a CSV log, and tears the
// whole group down on exit, timeout or interrupt.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/randomizedcoder/go-workload-monitor/internal/config"
	"github.com/randomizedcoder/go-workload-monitor/internal/logging"
	"github.com/randomizedcoder/go-workload-monitor/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-workload-monitor
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command-line flags
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Printf("go-workload-monitor %s\n", version)
		return 0
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.LogFormat, cfg.Verbose, cfg.Quiet)
	logging.SetDefault(logger)

	if !cfg.Quiet {
		printBanner(cfg)
	}

	orch := orchestrator.New(cfg, logger, version)
	if err := orch.Run(context.Background()); err != nil {
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			return coded.ExitCode()
		}
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}

	// The workload's own status lives in the log trailer, not our exit code.
	return 0
}

// printBanner prints the startup banner. Stdout belongs to the workload.
func printBanner(cfg *config.Config) {
	w := os.Stderr
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      go-workload-monitor                          ║")
	fmt.Fprintln(w, "║     Workload Supervision with CPU / Memory / GPU Sampling         ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Workload:    %s\n", describeWorkload(cfg))
	fmt.Fprintf(w, "  Interval:    %s\n", cfg.Interval)
	fmt.Fprintf(w, "  Log file:    %s\n", cfg.OutFile)
	if cfg.Timeout > 0 {
		fmt.Fprintf(w, "  Timeout:     %s (grace %s)\n", cfg.Timeout, cfg.Grace)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

func describeWorkload(cfg *config.Config) string {
	switch {
	case !cfg.HasWorkload():
		return "(default stress workload)"
	case len(cfg.Args) > 0:
		return strings.Join(cfg.Args, " ")
	default:
		return cfg.Command
	}
}
