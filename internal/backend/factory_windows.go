//go:build windows

package backend

import "github.com/thefrederiksen/cc-director-sub002/internal/logging"

// NewPersistentBackend constructs the platform's persistent-process
// backend: ConPtyBackend on Windows.
func NewPersistentBackend(log *logging.Logger) Backend {
	return NewConPtyBackend(log)
}

// PersistentBackendKind names the platform's persistent backend variant,
// for logging/persistence (spec.md §3 PersistedSession.BackendKind).
const PersistentBackendKind = "conpty"
