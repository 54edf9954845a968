//go:build !windows

package sessionmanager

import (
	"os/exec"
	"strconv"
	"strings"
)

// findProcessesByName enumerates PIDs of running processes matching name
// via pgrep -f, mirroring the teacher's own CleanupOrphanedCodeServers use
// of pgrep for process discovery. pgrep's exit code 1 (no match) is not an
// error.
func findProcessesByName(name string) ([]int, error) {
	out, err := exec.Command("pgrep", "-f", name).CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		pid, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
