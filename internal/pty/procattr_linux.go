//go:build linux

package pty

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in its own process group so the whole tree
// can be signaled together, and asks the kernel to SIGTERM the child if
// this process dies unexpectedly without a clean Dispose (e.g. a crash).
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
