//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SocketPath is the well-known Unix domain socket path (spec.md §4.9,
// §6.3).
func SocketPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ipc: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cc_director", "director.sock"), nil
}

// newPlatformListener binds a Unix domain socket at SocketPath, removing
// a stale socket file left by a previous crash first (spec.md §4.9,
// grounded on the teacher's own startControllerSocket in
// cmd/gc/controller.go).
func newPlatformListener() (net.Listener, func(), error) {
	path, err := SocketPath()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("ipc: mkdir socket dir: %w", err)
	}
	_ = os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: listen on %s: %w", path, err)
	}
	if unixListener, ok := listener.(*net.UnixListener); ok {
		unixListener.SetUnlinkOnClose(true)
	}

	cleanup := func() { _ = os.Remove(path) }
	return listener, cleanup, nil
}
