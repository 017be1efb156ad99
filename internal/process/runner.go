// Package process launches the monitored workload and signals its
// process group.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/sys/unix"
)

// ErrNoCommand means no workload was configured and the fallback
// workload is not installed. The run cannot start.
var ErrNoCommand = errors.New("no workload command configured and fallback workload not found")

// DefaultWorkload is the stress workload used when no command is given.
// It runs for a bounded time so an unattended monitor terminates.
var DefaultWorkload = []string{
	"stress-ng", "--cpu", "1", "--vm", "1", "--vm-bytes", "256M", "--timeout", "60s",
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// Command is a resolved workload.
type Command struct {
	// Text is the command as shown in logs and recorded in the handle.
	Text string

	// Argv is what gets executed. Command strings run as
	// ["sh", "-c", Text]; trailing arguments run directly.
	Argv []string

	// Fallback is true when DefaultWorkload was selected.
	Fallback bool
}

// ResolveCommand picks the workload: trailing args first, then the command
// string, then DefaultWorkload if it is installed. Returns ErrNoCommand
// when none applies.
func ResolveCommand(command string, args []string) (Command, error) {
	if len(args) > 0 {
		return Command{
			Text: joinArgv(args),
			Argv: append([]string(nil), args...),
		}, nil
	}

	if strings.TrimSpace(command) != "" {
		return Command{
			Text: command,
			Argv: []string{"sh", "-c", command},
		}, nil
	}

	if _, err := lookPath(DefaultWorkload[0]); err == nil {
		return Command{
			Text:     joinArgv(DefaultWorkload),
			Argv:     append([]string(nil), DefaultWorkload...),
			Fallback: true,
		}, nil
	}

	return Command{}, ErrNoCommand
}

// Program returns the executable the command will run, skipping leading
// VAR=value assignments. Returns "" if the text cannot be tokenized; the
// shell is the final judge in that case.
func (c Command) Program() string {
	tokens, err := shlex.Split(c.Text)
	if err != nil {
		return ""
	}
	for _, tok := range tokens {
		if strings.Contains(tok, "=") && !strings.HasPrefix(tok, "=") {
			continue
		}
		return tok
	}
	return ""
}

// joinArgv renders argv as a single line, quoting words that need it.
func joinArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\$`;&|<>()*?[]{}~#") {
			parts[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

// Handle identifies a running workload. It is created once by Start and
// never mutated; PGID is the unit of termination.
type Handle struct {
	PID       int
	PGID      int
	Command   string
	StartTime time.Time

	cmd *exec.Cmd
}

// Wait blocks until the workload leader exits and returns its exit
// status. It must be called exactly once. Descendants still holding
// piped stdio delay it by at most stdioWaitDelay.
func (h *Handle) Wait() (exitCode int, err error) {
	err = h.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		// Only returned when the leader itself exited successfully.
		return 0, err
	}
	return ExitCode(err), err
}

// Kill sends SIGKILL to the leader alone. It is the last resort when a
// leader has left its own process group.
func (h *Handle) Kill() error {
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// stdioWaitDelay bounds how long Wait drains piped stdio after the
// leader exits.
const stdioWaitDelay = 100 * time.Millisecond

// Launcher starts workloads. Nil stdio fields connect to the null device.
type Launcher struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    []string // nil = inherit
}

// NewLauncher returns a Launcher wired to the supervisor's own stdio.
func NewLauncher() *Launcher {
	return &Launcher{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Start runs the command as the leader of a new session, so the workload
// and all of its descendants share one process group that is separate
// from ours.
func (l *Launcher) Start(c Command) (*Handle, error) {
	if len(c.Argv) == 0 {
		return nil, ErrNoCommand
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.Env = l.Env
	cmd.SysProcAttr = sessionAttr()
	// Non-file stdio is copied through pipes that background children
	// inherit; without a delay Wait would track the longest-lived one.
	cmd.WaitDelay = stdioWaitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start workload %q: %w", c.Text, err)
	}

	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// Setsid makes the leader's pgid its pid; the lookup only
		// fails if it already exited.
		pgid = pid
	}

	return &Handle{
		PID:       pid,
		PGID:      pgid,
		Command:   c.Text,
		StartTime: start,
		cmd:       cmd,
	}, nil
}
