//go:build linux

package process

import (
	"syscall"
	"testing"
)

func TestSessionAttr(t *testing.T) {
	attr := sessionAttr()
	if !attr.Setsid {
		t.Error("workload not started in its own session")
	}
	if attr.Pdeathsig != syscall.SIGKILL {
		t.Errorf("Pdeathsig = %v, want SIGKILL", attr.Pdeathsig)
	}
	if attr.Setpgid {
		t.Error("Setpgid combined with Setsid fails with EPERM")
	}
}
