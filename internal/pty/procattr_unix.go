//go:build unix && !linux

package pty

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in its own process group so the whole tree
// can be signaled together. Non-Linux Unix (e.g. darwin) has no Pdeathsig.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
