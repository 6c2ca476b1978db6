//go:build !windows
// +build !windows

package process

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// backgroundSysProcAttr puts the child in its own process group so that a
// ctrl-c meant for the adapter does not reach GDB or the server.
func backgroundSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pgid: 0}
}

func terminate(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGTERM)
}
