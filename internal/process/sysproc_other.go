//go:build unix && !linux

package process

import "syscall"

// sessionAttr starts the child as a session leader.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
