// Package backend implements the SessionBackend capability (spec.md §4.4):
// the uniform contract Session consumes, with three platform/behavior
// variants — ConPtyBackend, UnixPtyBackend, PipeBackend.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/thefrederiksen/cc-director-sub002/internal/buffer"
)

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("backend: already started")

// Status mirrors process lifecycle, distinct from Session's ActivityState
// (spec.md §3).
type Status int

const (
	StatusStarting Status = iota
	StatusRunning
	StatusExiting
	StatusExited
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "Starting"
	case StatusRunning:
		return "Running"
	case StatusExiting:
		return "Exiting"
	case StatusExited:
		return "Exited"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// LargeInputThreshold is the byte length above which send_text spills its
// payload to a temp file and sends an `@<path>` reference instead
// (spec.md §6.5). Matches the teacher's own ~4KB pipe-buffer-friendly
// chunk size used elsewhere for PTY writes.
const LargeInputThreshold = 4096

// SendTextPacingDelay is the pause between writing text and the line
// terminator in the persistent-process variants, giving the agent's TUI
// time to absorb the text before submit (spec.md §4.4).
const SendTextPacingDelay = 50 * time.Millisecond

// PipeBackendKind and EmbeddedBackendKind name the platform-independent
// backend variants, alongside PersistentBackendKind (conpty/unixpty,
// defined per-platform in factory_windows.go/factory_unix.go) for
// SessionManager's kind dispatch and PersistedSession.BackendKind.
const (
	PipeBackendKind     = "pipe"
	EmbeddedBackendKind = "embedded"
)

// Backend is the uniform contract Session consumes (spec.md §4.4 table).
type Backend interface {
	Start(ctx context.Context, exe string, args []string, cwd string, cols, rows int) error
	Write(p []byte) error
	SendText(text string) error
	SendEnter() error
	Resize(cols, rows int) error
	GracefulShutdown(timeout time.Duration) error
	Buffer() *buffer.Ring
	IsRunning() bool
	Status() Status
	ProcessID() int

	OnProcessExited(fn func(exitCode int))
	OnStatusChanged(fn func(Status))

	// AgentSessionId accessors let SessionManager/PipeBackend coordinate
	// resume-flag injection and post-exit clearing (spec.md §4.4's
	// PipeBackend variant).
	AgentSessionID() string
	SetAgentSessionID(id string)
}
