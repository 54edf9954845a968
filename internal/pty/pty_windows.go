//go:build windows

package pty

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/UserExistsError/conpty"
)

// windowsHandle wraps a Windows ConPTY pseudo-console.
type windowsHandle struct {
	cpty *conpty.ConPty
}

func (h *windowsHandle) Read(b []byte) (int, error)  { return h.cpty.Read(b) }
func (h *windowsHandle) Write(b []byte) (int, error) { return h.cpty.Write(b) }
func (h *windowsHandle) Close() error                { return h.cpty.Close() }

func (h *windowsHandle) Resize(cols, rows int) error {
	return h.cpty.Resize(cols, rows)
}

// startWithSize creates a Windows ConPTY and starts cmd attached to it.
// ConPTY performs process creation internally via the extended startup-info
// attribute mechanism (spec.md §6.1) so cmd.Process is populated afterward
// rather than by cmd.Start().
func startWithSize(cmd *exec.Cmd, cols, rows int) (Handle, error) {
	applyChildEnv(cmd)

	cmdLine := buildCommandLine(cmd.Path, cmd.Args)
	opts := []conpty.ConPtyOption{conpty.ConPtyDimensions(cols, rows)}
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	if cmd.Env != nil {
		opts = append(opts, conpty.ConPtyEnv(cmd.Env))
	}

	cpty, err := conpty.Start(cmdLine, opts...)
	if err != nil {
		return nil, err
	}

	proc, err := os.FindProcess(int(cpty.Pid()))
	if err != nil {
		_ = cpty.Close()
		return nil, fmt.Errorf("find conpty process %d: %w", cpty.Pid(), err)
	}
	cmd.Process = proc

	return &windowsHandle{cpty: cpty}, nil
}

// buildCommandLine renders a Windows command line from an argv-style slice,
// quoting arguments that contain whitespace.
func buildCommandLine(path string, args []string) string {
	parts := make([]string, 0, len(args))
	for i, a := range args {
		if i == 0 {
			// args[0] conventionally mirrors path; prefer path for quoting fidelity.
			parts = append(parts, quoteArg(path))
			continue
		}
		parts = append(parts, quoteArg(a))
	}
	if len(parts) == 0 {
		parts = append(parts, quoteArg(path))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return `""`
	}
	if !strings.ContainsAny(arg, " \t\"") {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}
