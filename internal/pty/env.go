package pty

import (
	"os"
	"os/exec"
	"strings"
)

// nestedInstanceMarker is the environment variable the agent uses to detect
// it is already running inside a supervised session. Spec.md §4.3 requires
// the spawned child's environment to have this stripped so it does not
// self-detect as nested when CC Director itself was launched from within a
// CC Director session.
const nestedInstanceMarker = "CC_DIRECTOR_SESSION"

// applyChildEnv sets cmd.Env to the parent's environment, sanitized of the
// nested-instance marker, unless the caller already populated cmd.Env
// explicitly (e.g. with additional overrides), in which case only the
// marker is stripped from what's there.
func applyChildEnv(cmd *exec.Cmd) {
	base := cmd.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(stripMarker(base), termEnv()...)
}

func stripMarker(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, nestedInstanceMarker+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
