// Package preflight provides startup validation checks.
package preflight

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-workload-monitor/internal/process"
	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what the run will need.
type Options struct {
	Caps    sampler.Capabilities
	GPUTool string // as configured, for messages
	Command string
	Args    []string
	OutFile string
}

// minFileDescriptors covers the log, the metrics server and the
// workload's inherited stdio with headroom.
const minFileDescriptors = 64

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks. Missing optional tooling only
// warns; the run degrades to N/A columns.
func RunAll(opts Options) *Result {
	checks := []Check{
		checkFileDescriptors(),
		checkProcFS(opts.Caps),
		checkGPUTool(opts.Caps, opts.GPUTool),
		checkWorkload(opts.Command, opts.Args),
		checkOutputDir(opts.OutFile),
	}

	result := &Result{Checks: checks, Passed: true}
	for _, c := range checks {
		if !c.Passed {
			result.Passed = false
		}
	}
	return result
}

// checkFileDescriptors verifies the soft RLIMIT_NOFILE.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(min(limit.Cur, 1<<30))
	return Check{
		Name:     "file_descriptors",
		Required: minFileDescriptors,
		Actual:   actual,
		Passed:   actual >= minFileDescriptors,
	}
}

func checkProcFS(caps sampler.Capabilities) Check {
	if !caps.ProcFS {
		return Check{
			Name:    "procfs",
			Passed:  true,
			Warning: true,
			Message: "/proc not readable; CPU and memory columns will be N/A",
		}
	}
	return Check{
		Name:    "procfs",
		Passed:  true,
		Message: "/proc mounted",
	}
}

func checkGPUTool(caps sampler.Capabilities, tool string) Check {
	if !caps.GPU {
		return Check{
			Name:    "gpu_tool",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s not found; GPU columns will be N/A", tool),
		}
	}
	return Check{
		Name:    "gpu_tool",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (device %d)", caps.GPUTool, caps.GPUDevice),
	}
}

// checkWorkload resolves the program the run will start. An unresolvable
// workload only warns here; the supervisor reports it with exit 127.
func checkWorkload(command string, args []string) Check {
	cmd, err := process.ResolveCommand(command, args)
	if errors.Is(err, process.ErrNoCommand) {
		return Check{
			Name:    "workload",
			Passed:  true,
			Warning: true,
			Message: "no command given and fallback stress-ng not installed",
		}
	}

	program := cmd.Program()
	if program == "" {
		return Check{
			Name:    "workload",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("cannot tokenize %q; the shell will decide", cmd.Text),
		}
	}

	path, err := lookPath(program)
	if err != nil {
		// Shell builtins and functions are not on PATH.
		return Check{
			Name:    "workload",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s not found on PATH", program),
		}
	}

	msg := fmt.Sprintf("%s (%s)", program, path)
	if cmd.Fallback {
		msg += ", fallback workload"
	}
	return Check{
		Name:    "workload",
		Passed:  true,
		Message: msg,
	}
}

// checkOutputDir verifies the log's directory exists and is writable.
func checkOutputDir(outFile string) Check {
	dir := filepath.Dir(outFile)
	info, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    "output_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "output_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return Check{
			Name:    "output_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s not writable: %v", dir, err),
		}
	}
	return Check{
		Name:    "output_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s writable", dir),
	}
}

// PrintResults prints the preflight check results.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			if fix := suggestFix(check.Name); fix != "" {
				fmt.Fprintf(w, "    Fix: %s\n", fix)
			}
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "procfs":
		return "mount -t proc proc /proc"
	case "gpu_tool":
		return "install the NVIDIA driver utilities or pass --gpu-smi"
	case "workload":
		return "pass -c '<command>' or install stress-ng (apt install stress-ng)"
	case "output_dir":
		return "choose a writable path with -o"
	default:
		return ""
	}
}

// Failed returns the names of failed checks.
func (r *Result) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// Summary returns a one-line description of failures, or "" if none.
func (r *Result) Summary() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return ""
	}
	return "failed: " + strings.Join(failed, ", ")
}
