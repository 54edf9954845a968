//go:build windows

package ipc

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// PipeName is the well-known named pipe name (spec.md §4.9, §6.3).
const PipeName = `\\.\pipe\CC_ClaudeDirector`

// newPlatformListener opens a Windows named pipe server: inbound only,
// byte mode, asynchronous, with the system's maximum allowed server
// instances (spec.md §4.9). go-winio's PipeConfig defaults already match
// this shape; MessageMode left false gives byte-stream semantics.
func newPlatformListener() (net.Listener, func(), error) {
	listener, err := winio.ListenPipe(PipeName, &winio.PipeConfig{
		MessageMode:      false,
		InputBufferSize:  64 * 1024,
		OutputBufferSize: 64 * 1024,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: listen on pipe %s: %w", PipeName, err)
	}
	return listener, func() {}, nil
}
