//go:build !windows

package backend

import "github.com/thefrederiksen/cc-director-sub002/internal/logging"

// UnixPtyBackend is the persistent-process backend on Unix, attached to an
// openpty pair (spec.md §4.4). Only exists in a non-Windows build.
type UnixPtyBackend struct {
	*persistentBackend
}

// NewUnixPtyBackend constructs an unstarted UnixPtyBackend.
func NewUnixPtyBackend(log *logging.Logger) *UnixPtyBackend {
	return &UnixPtyBackend{persistentBackend: newPersistentBackend(log)}
}
