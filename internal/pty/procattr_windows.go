//go:build windows

package pty

import (
	"fmt"
	"os/exec"
)

// setProcGroup is a no-op placeholder on Windows: ConPTY manages the
// process tree itself and group semantics are handled by taskkill /T in
// killProcessGroup.
func setProcGroup(cmd *exec.Cmd) {}

// killProcessGroup force-kills the entire process tree rooted at pid.
func killProcessGroup(pid int) error {
	kill := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", pid))
	return kill.Run()
}

// terminateProcessGroup has no graceful equivalent on Windows; callers fall
// back to killProcessGroup.
func terminateProcessGroup(pid int) error {
	return killProcessGroup(pid)
}
