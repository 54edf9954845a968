//go:build !windows

package pty

// termEnv returns the TERM assignment injected into every spawned agent's
// environment on Unix (spec.md §4.2/§6.1): xterm-256color, appended after
// stripMarker so it always wins over any stale TERM already present.
func termEnv() []string {
	return []string{"TERM=xterm-256color"}
}
