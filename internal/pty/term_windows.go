//go:build windows

package pty

// termEnv is empty on Windows: ConPTY does not rely on a TERM variable the
// way Unix terminals do.
func termEnv() []string { return nil }
