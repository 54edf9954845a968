//go:build windows

package pty

import (
	"os"
	"os/exec"
)

// SendInterrupt writes the interrupt byte (0x03) to the pseudo-console.
// Windows has no SIGTERM equivalent for an arbitrary process tree reachable
// from Go's standard library, so graceful_shutdown relies on the 0x03 byte
// alone before escalating to KillTree (spec.md §4.3).
func (c *Console) SendInterrupt(proc *os.Process) error {
	_, err := c.Write([]byte{0x03})
	return err
}

// KillTree force-terminates the whole process tree rooted at proc via
// taskkill /T.
func KillTree(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return killProcessGroup(proc.Pid)
}

// Wait blocks until cmd exits and reports its exit code. Windows exit codes
// carry no signal information.
func Wait(cmd *exec.Cmd) (exitCode int, signalName string, err error) {
	err = cmd.Wait()
	if err == nil {
		return 0, "", nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), "", err
	}
	return 1, "", err
}
