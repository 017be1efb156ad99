package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrGroupGone is returned when no process in the group is left to signal.
var ErrGroupGone = errors.New("process group has exited")

// SignalGroup sends sig to every process in the group.
func SignalGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 1 {
		// -1 would signal every process we can reach.
		return fmt.Errorf("refusing to signal process group %d", pgid)
	}
	err := unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return ErrGroupGone
	}
	if err != nil {
		return fmt.Errorf("signal %v to group %d: %w", sig, pgid, err)
	}
	return nil
}

// GroupAlive reports whether any process (including unreaped zombies)
// remains in the group.
func GroupAlive(pgid int) bool {
	if pgid <= 1 {
		return false
	}
	err := unix.Kill(-pgid, 0)
	// EPERM means something exists that we may not signal.
	return err == nil || errors.Is(err, unix.EPERM)
}

// ExitCode extracts the exit status from a Wait() error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
