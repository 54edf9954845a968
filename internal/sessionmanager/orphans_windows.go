//go:build windows

package sessionmanager

import (
	"os/exec"
	"strconv"
	"strings"
)

// findProcessesByName enumerates PIDs of running processes matching name
// via tasklist's CSV output, the Windows counterpart to the unix variant's
// pgrep -f (spec.md §4.8 orphan scan; teacher's own process package splits
// this same unix/windows process-enumeration fork along build tags).
func findProcessesByName(name string) ([]int, error) {
	out, err := exec.Command("tasklist", "/FI", "IMAGENAME eq "+name, "/FO", "CSV", "/NH").CombinedOutput()
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		pidField := strings.Trim(strings.TrimSpace(fields[1]), `"`)
		pid, convErr := strconv.Atoi(pidField)
		if convErr != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
