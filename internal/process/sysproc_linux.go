//go:build linux

package process

import "syscall"

// sessionAttr starts the child as a session leader. Pdeathsig kills the
// leader if the supervisor dies without running cleanup (SIGKILL, OOM).
//
// Pdeathsig is not inherited across fork, so descendants of the leader
// survive such a death: they are reparented to init and keep the
// workload's process group id. The group guarantee therefore holds for
// every exit path that runs Go code (return, panic, handled signals) but
// not for SIGKILL of the monitor; run it under a service manager or
// container that kills the whole cgroup when that matters.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid:    true,
		Pdeathsig: syscall.SIGKILL,
	}
}
