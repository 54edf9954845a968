//go:build windows

package backend

import "github.com/thefrederiksen/cc-director-sub002/internal/logging"

// ConPtyBackend is the persistent-process backend on Windows, attached to
// a ConPTY pseudo-console (spec.md §4.4). The platform fork lives in
// internal/pty's build-tagged files; this type only exists in a Windows
// build so SessionManager's backend-kind selection naturally rejects it
// elsewhere at compile time.
type ConPtyBackend struct {
	*persistentBackend
}

// NewConPtyBackend constructs an unstarted ConPtyBackend.
func NewConPtyBackend(log *logging.Logger) *ConPtyBackend {
	return &ConPtyBackend{persistentBackend: newPersistentBackend(log)}
}
