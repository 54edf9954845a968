//go:build !windows

package backend

import "github.com/thefrederiksen/cc-director-sub002/internal/logging"

// NewPersistentBackend constructs the platform's persistent-process
// backend: UnixPtyBackend on Unix.
func NewPersistentBackend(log *logging.Logger) Backend {
	return NewUnixPtyBackend(log)
}

// PersistentBackendKind names the platform's persistent backend variant,
// for logging/persistence (spec.md §3 PersistedSession.BackendKind).
const PersistentBackendKind = "unixpty"
