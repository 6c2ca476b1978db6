//go:build windows
// +build windows

package process

import (
	"os"
	"syscall"
)

func backgroundSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func terminate(p *os.Process) error {
	return p.Kill()
}
