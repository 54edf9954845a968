// Package pty implements the per-platform PseudoConsole backend (spec.md
// §4.2): a PTY master/slave pair with a resizable window, selected by OS at
// compile time via build tags (internal/pty/pty_unix.go, pty_windows.go).
package pty

import (
	"fmt"
	"io"
	"os/exec"
)

// ErrPtyInitFailed is returned when the underlying OS PTY/ConPTY primitive
// could not be created.
type ErrPtyInitFailed struct {
	Cause error
}

func (e *ErrPtyInitFailed) Error() string {
	return fmt.Sprintf("pty init failed: %v", e.Cause)
}
func (e *ErrPtyInitFailed) Unwrap() error { return e.Cause }

// Handle abstracts a PTY master across Unix (creack/pty) and Windows
// (ConPTY). Read returns 0, io.EOF when the agent side has closed.
type Handle interface {
	io.ReadWriteCloser
	Resize(cols, rows int) error
}

// Console owns one PTY pair and the dimensions last resolved by Resize.
// Create allocates the pair and starts the child in the same step, via the
// platform-specific startWithSize, so the child is attached to the slave at
// creation time (required on Windows, where ConPTY and process creation are
// a single OS call). ProcessHost builds the exec.Cmd and hands it to Create.
type Console struct {
	handle     Handle
	cols, rows int
}

// Create allocates a new PTY pair at the given size and spawns cmd attached
// to it. cmd must not have been started yet.
func Create(cmd *exec.Cmd, cols, rows int) (*Console, error) {
	if cols <= 0 {
		cols = 120
	}
	if rows <= 0 {
		rows = 30
	}
	h, err := startWithSize(cmd, cols, rows)
	if err != nil {
		return nil, &ErrPtyInitFailed{Cause: err}
	}
	return &Console{handle: h, cols: cols, rows: rows}, nil
}

// Resize is best-effort: a failure is returned to the caller to log, never
// panics and never tears down the console.
func (c *Console) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("pty: invalid size %dx%d", cols, rows)
	}
	err := c.handle.Resize(cols, rows)
	if err == nil {
		c.cols, c.rows = cols, rows
	}
	return err
}

// Size returns the last dimensions successfully resolved by Resize/Create.
func (c *Console) Size() (cols, rows int) { return c.cols, c.rows }

// Write sends bytes to the master (the agent's stdin).
func (c *Console) Write(p []byte) (int, error) { return c.handle.Write(p) }

// Read reads from the master (the agent's stdout+stderr, merged by the
// PTY). Returns 0, io.EOF once the slave side is closed.
func (c *Console) Read(p []byte) (int, error) { return c.handle.Read(p) }

// Dispose closes both ends of the PTY pair.
func (c *Console) Dispose() error { return c.handle.Close() }
