// Package processhost implements ProcessHost (spec.md §4.3): it spawns the
// agent executable attached to a pty.Console and runs the drain and
// exit-monitor tasks that feed the circular buffer and raise OnExited.
// Grounded on the teacher's InteractiveRunner readOutput/wait goroutines
// (internal/agentctl/server/process/interactive_runner.go).
package processhost

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thefrederiksen/cc-director-sub002/internal/buffer"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
	ptypkg "github.com/thefrederiksen/cc-director-sub002/internal/pty"
)

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("processhost: already started")

// ErrProcessSpawnFailed wraps a failure to spawn the agent executable.
type ErrProcessSpawnFailed struct{ Cause error }

func (e *ErrProcessSpawnFailed) Error() string {
	return fmt.Sprintf("process spawn failed: %v", e.Cause)
}
func (e *ErrProcessSpawnFailed) Unwrap() error { return e.Cause }

// ExitInfo describes a terminated agent process.
type ExitInfo struct {
	ExitCode int
	Signal   string
}

// Host owns one PTY-backed agent process: the pty.Console, the exec.Cmd,
// and the drain/exit-monitor goroutines. It never outlives a single spawn —
// a fresh Host is created for every session start.
type Host struct {
	log *logging.Logger

	mu       sync.Mutex
	started  bool
	disposed bool

	console *ptypkg.Console
	cmd     *exec.Cmd

	onExited     func(ExitInfo)
	exitFired    bool
	exitFiredMu  sync.Mutex
	drainDone    chan struct{}
	exitDone     chan struct{}
}

// New creates an unstarted Host.
func New(log *logging.Logger) *Host {
	if log == nil {
		log = logging.Default()
	}
	return &Host{log: log}
}

// OnExited registers the callback raised exactly once when the agent
// process terminates. Must be set before Start.
func (h *Host) OnExited(fn func(ExitInfo)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onExited = fn
}

// Start spawns exe with args attached to a new PseudoConsole sized cols x
// rows, in working directory cwd, with additional environment overrides
// appended (nested-instance marker stripping happens inside internal/pty).
func (h *Host) Start(exe string, args []string, cwd string, env []string, cols, rows int) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	h.started = true
	h.mu.Unlock()

	cmd := exec.Command(exe, args...)
	cmd.Dir = cwd
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	console, err := ptypkg.Create(cmd, cols, rows)
	if err != nil {
		return &ErrProcessSpawnFailed{Cause: err}
	}

	h.mu.Lock()
	h.console = console
	h.cmd = cmd
	h.mu.Unlock()

	h.log.Debug("processhost: started", zap.String("exe", exe), zap.Int("pid", h.pid()))
	return nil
}

// StartDrainLoop reads from the PTY master into buf until EOF or dispose.
// IO errors during an expected shutdown are swallowed; the loop simply ends
// and relies on the exit monitor to fire OnExited.
func (h *Host) StartDrainLoop(buf *buffer.Ring) {
	h.mu.Lock()
	h.drainDone = make(chan struct{})
	console := h.console
	h.mu.Unlock()

	go func() {
		defer close(h.drainDone)
		chunk := make([]byte, 32*1024)
		for {
			n, err := console.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
			}
			if err != nil {
				if err != io.EOF {
					h.log.Debug("processhost: drain read ended", zap.Error(err))
				}
				return
			}
		}
	}()
}

// StartExitMonitor waits for the process to exit and raises OnExited
// exactly once, after the drain loop has observed EOF.
func (h *Host) StartExitMonitor() {
	h.mu.Lock()
	h.exitDone = make(chan struct{})
	cmd := h.cmd
	drainDone := h.drainDone
	h.mu.Unlock()

	go func() {
		defer close(h.exitDone)
		exitCode, signal, _ := ptypkg.Wait(cmd)
		if drainDone != nil {
			<-drainDone
		}
		h.fireExited(ExitInfo{ExitCode: exitCode, Signal: signal})
	}()
}

func (h *Host) fireExited(info ExitInfo) {
	h.exitFiredMu.Lock()
	alreadyFired := h.exitFired
	h.exitFired = true
	h.exitFiredMu.Unlock()
	if alreadyFired {
		return
	}
	h.mu.Lock()
	cb := h.onExited
	h.mu.Unlock()
	if cb != nil {
		cb(info)
	}
}

// Write forwards bytes to the PTY master. Quietly no-ops once disposed;
// never partial.
func (h *Host) Write(p []byte) error {
	h.mu.Lock()
	console := h.console
	disposed := h.disposed
	h.mu.Unlock()
	if disposed || console == nil {
		return nil
	}
	_, err := console.Write(p)
	if err != nil {
		h.log.Debug("processhost: write failed", zap.Error(err))
		return nil
	}
	return nil
}

// Resize forwards to the underlying PseudoConsole. Best-effort: a failure
// is returned to the caller to log, never torn down (spec.md §4.2).
func (h *Host) Resize(cols, rows int) error {
	h.mu.Lock()
	console := h.console
	h.mu.Unlock()
	if console == nil {
		return nil
	}
	return console.Resize(cols, rows)
}

// WriteAsync forwards bytes without waiting for completion to be observed
// by the caller; the PTY master write is itself synchronous so this simply
// dispatches it on its own goroutine.
func (h *Host) WriteAsync(p []byte) {
	go func() { _ = h.Write(p) }()
}

// GracefulShutdown writes the interrupt byte, sends SIGTERM on Unix (via
// pty.Console.SendInterrupt), waits up to timeout for the process to exit,
// and force-terminates the whole tree if it hasn't.
func (h *Host) GracefulShutdown(timeout time.Duration) error {
	h.mu.Lock()
	console := h.console
	cmd := h.cmd
	exitDone := h.exitDone
	h.mu.Unlock()

	if console == nil || cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := console.SendInterrupt(cmd.Process); err != nil {
		h.log.Debug("processhost: send interrupt failed (expected on shutdown)", zap.Error(err))
	}

	if exitDone == nil {
		return nil
	}
	select {
	case <-exitDone:
		return nil
	case <-time.After(timeout):
	}

	h.log.Info("processhost: graceful shutdown timed out, terminating process tree", zap.Int("pid", h.pid()))
	if err := ptypkg.KillTree(cmd.Process); err != nil {
		return err
	}

	select {
	case <-exitDone:
	case <-time.After(3 * time.Second):
		h.log.Warn("processhost: exit monitor did not observe termination within grace period")
	}
	return nil
}

// Dispose closes the PseudoConsole (which ends the drain loop's read),
// terminates the process tree if still alive, then waits up to 3s for the
// drain loop to finish.
func (h *Host) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	console := h.console
	cmd := h.cmd
	drainDone := h.drainDone
	h.mu.Unlock()

	if console != nil {
		_ = console.Dispose()
	}
	if cmd != nil && cmd.Process != nil {
		_ = ptypkg.KillTree(cmd.Process)
	}
	if drainDone != nil {
		select {
		case <-drainDone:
		case <-time.After(3 * time.Second):
		}
	}
}

func (h *Host) pid() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// ProcessID returns the OS process id of the spawned agent, or 0 if not
// yet started.
func (h *Host) ProcessID() int { return h.pid() }
