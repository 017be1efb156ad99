package process

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

// stubLookPath makes only the named programs resolvable.
func stubLookPath(t *testing.T, found ...string) {
	t.Helper()
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(file string) (string, error) {
		for _, f := range found {
			if f == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestResolveCommand(t *testing.T) {
	tests := []struct {
		name         string
		command      string
		args         []string
		installed    []string
		wantArgv     []string
		wantFallback bool
		wantErr      error
	}{
		{
			name:     "trailing args win",
			command:  "ignored",
			args:     []string{"sleep", "3"},
			wantArgv: []string{"sleep", "3"},
		},
		{
			name:     "command string runs through sh",
			command:  "sleep 3 && echo done",
			wantArgv: []string{"sh", "-c", "sleep 3 && echo done"},
		},
		{
			name:         "fallback when installed",
			installed:    []string{"stress-ng"},
			wantArgv:     DefaultWorkload,
			wantFallback: true,
		},
		{
			name:    "no command and no fallback",
			wantErr: ErrNoCommand,
		},
		{
			name:    "blank command is no command",
			command: "   ",
			wantErr: ErrNoCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubLookPath(t, tt.installed...)

			got, err := ResolveCommand(tt.command, tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if strings.Join(got.Argv, "\x00") != strings.Join(tt.wantArgv, "\x00") {
				t.Errorf("Argv = %q, want %q", got.Argv, tt.wantArgv)
			}
			if got.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", got.Fallback, tt.wantFallback)
			}
			if got.Text == "" {
				t.Error("Text should not be empty")
			}
		})
	}
}

func TestCommand_Program(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"sleep 3", "sleep"},
		{"CUDA_VISIBLE_DEVICES=0 python train.py", "python"},
		{"'/opt/my tools/run' --fast", "/opt/my tools/run"},
		{"A=1 B=2", ""},
		{"echo 'unterminated", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := (Command{Text: tt.text}).Program(); got != tt.want {
				t.Errorf("Program() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoinArgv(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"sleep", "3"}, "sleep 3"},
		{[]string{"echo", "hello world"}, "echo 'hello world'"},
		{[]string{"echo", "it's"}, `echo 'it'\''s'`},
		{[]string{"printf", ""}, "printf ''"},
	}

	for _, tt := range tests {
		if got := joinArgv(tt.argv); got != tt.want {
			t.Errorf("joinArgv(%q) = %q, want %q", tt.argv, got, tt.want)
		}
	}
}

func TestLauncher_StartNewSession(t *testing.T) {
	l := &Launcher{}
	h, err := l.Start(Command{Text: "sleep 0.2", Argv: []string{"sh", "-c", "sleep 0.2"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if h.PID <= 0 {
		t.Fatalf("PID = %d", h.PID)
	}
	if h.PGID != h.PID {
		t.Errorf("PGID = %d, want leader pid %d", h.PGID, h.PID)
	}
	if h.PGID == syscall.Getpgrp() {
		t.Error("workload shares the supervisor's process group")
	}
	if h.Command != "sleep 0.2" {
		t.Errorf("Command = %q", h.Command)
	}
	if time.Since(h.StartTime) > 5*time.Second {
		t.Errorf("StartTime = %v", h.StartTime)
	}

	code, _ := h.Wait()
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestHandle_WaitWithPipedStdio(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"clean_exit", "sleep 5 & echo started; exit 0", 0},
		{"failing_exit", "sleep 5 & echo started; exit 7", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			l := &Launcher{Stdout: &out, Stderr: &out}
			h, err := l.Start(Command{Argv: []string{"sh", "-c", tt.script}})
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			t.Cleanup(func() { _ = SignalGroup(h.PGID, syscall.SIGKILL) })

			start := time.Now()
			code, _ := h.Wait()
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("Wait returned after %v; the background child held it open", elapsed)
			}
			if code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
			if !strings.Contains(out.String(), "started") {
				t.Errorf("stdout = %q, want the leader's output", out.String())
			}
		})
	}
}

func TestLauncher_StartErrors(t *testing.T) {
	l := &Launcher{}

	if _, err := l.Start(Command{}); !errors.Is(err, ErrNoCommand) {
		t.Errorf("empty argv err = %v, want ErrNoCommand", err)
	}

	_, err := l.Start(Command{Text: "nope", Argv: []string{"/nonexistent/binary"}})
	if err == nil {
		t.Error("expected error starting a missing binary")
	}
}

func TestSignalGroup_ReachesDescendants(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("needs /proc")
	}

	pidFile := filepath.Join(t.TempDir(), "grandchild.pid")
	l := &Launcher{}
	// The shell backgrounds a grandchild and waits on it.
	h, err := l.Start(Command{Argv: []string{"sh", "-c", "sleep 30 & echo $! > " + pidFile + "; wait"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan int, 1)
	go func() {
		code, _ := h.Wait()
		done <- code
	}()

	grandchild := waitForPIDFile(t, pidFile)
	if err := SignalGroup(h.PGID, syscall.SIGKILL); err != nil {
		t.Fatalf("SignalGroup: %v", err)
	}

	select {
	case code := <-done:
		if code != 128+int(syscall.SIGKILL) {
			t.Errorf("exit code = %d, want %d", code, 128+int(syscall.SIGKILL))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("workload did not exit after SIGKILL")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !processDead(grandchild) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !processDead(grandchild) {
		t.Errorf("grandchild %d survived the group kill", grandchild)
	}
}

func TestSignalGroup_ExitedGroup(t *testing.T) {
	l := &Launcher{}
	h, err := l.Start(Command{Argv: []string{"true"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.Wait()

	if GroupAlive(h.PGID) {
		t.Error("GroupAlive after the only member was reaped")
	}
	if err := SignalGroup(h.PGID, syscall.SIGTERM); !errors.Is(err, ErrGroupGone) {
		t.Errorf("signal to empty group err = %v, want ErrGroupGone", err)
	}
}

func waitForPIDFile(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				return pid
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pid file %s never written", path)
	return 0
}

// processDead reports whether pid is gone or a zombie.
func processDead(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return true
	}
	state := s[i+2]
	return state == 'Z' || state == 'X'
}

func TestSignalGroup_RefusesSpecialGroups(t *testing.T) {
	for _, pgid := range []int{0, 1, -5} {
		if err := SignalGroup(pgid, syscall.Signal(0)); err == nil {
			t.Errorf("SignalGroup(%d) should refuse", pgid)
		}
		if GroupAlive(pgid) {
			t.Errorf("GroupAlive(%d) should be false", pgid)
		}
	}
}

func TestExitCode(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if got := ExitCode(nil); got != 0 {
			t.Errorf("ExitCode(nil) = %d", got)
		}
	})

	t.Run("exit status", func(t *testing.T) {
		err := exec.Command("sh", "-c", "exit 3").Run()
		if got := ExitCode(err); got != 3 {
			t.Errorf("ExitCode = %d, want 3", got)
		}
	})

	t.Run("signaled", func(t *testing.T) {
		err := exec.Command("sh", "-c", "kill -TERM $$").Run()
		if got := ExitCode(err); got != 128+int(syscall.SIGTERM) {
			t.Errorf("ExitCode = %d, want %d", got, 128+int(syscall.SIGTERM))
		}
	})

	t.Run("other error", func(t *testing.T) {
		if got := ExitCode(os.ErrClosed); got != 1 {
			t.Errorf("ExitCode = %d, want 1", got)
		}
	})
}
