//go:build !windows

package pty

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// unixHandle wraps the *os.File creack/pty hands back as the PTY master.
type unixHandle struct {
	master *os.File
}

func (h *unixHandle) Read(b []byte) (int, error)  { return h.master.Read(b) }
func (h *unixHandle) Write(b []byte) (int, error) { return h.master.Write(b) }
func (h *unixHandle) Close() error                { return h.master.Close() }

func (h *unixHandle) Resize(cols, rows int) error {
	return pty.Setsize(h.master, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// startWithSize allocates a Unix openpty pair and starts cmd attached to the
// slave, at the given initial window size. setProcGroup puts the child in
// its own process group so graceful_shutdown can signal the whole tree.
func startWithSize(cmd *exec.Cmd, cols, rows int) (Handle, error) {
	setProcGroup(cmd)
	applyChildEnv(cmd)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, err
	}
	return &unixHandle{master: f}, nil
}
