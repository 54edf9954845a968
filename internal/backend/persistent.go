package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thefrederiksen/cc-director-sub002/internal/buffer"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
	"github.com/thefrederiksen/cc-director-sub002/internal/processhost"
)

// bufferCapacity is the fixed size of each session's circular terminal
// buffer (spec.md §4.1).
const bufferCapacity = 4 * 1024 * 1024

// persistentBackend implements Backend for a long-lived agent process
// attached to a PTY/ConPTY. ConPtyBackend and UnixPtyBackend are thin,
// platform-gated wrappers over it — the platform fork already lives one
// layer down in internal/pty's build-tagged files, so duplicating it again
// here would just be the same dispatch twice.
type persistentBackend struct {
	log  *logging.Logger
	host *processhost.Host
	buf  *buffer.Ring
	cwd  string

	mu             sync.Mutex
	status         Status
	agentSessionID string

	onExited        func(int)
	onStatusChanged func(Status)
}

func newPersistentBackend(log *logging.Logger) *persistentBackend {
	if log == nil {
		log = logging.Default()
	}
	return &persistentBackend{
		log:    log,
		buf:    buffer.New(bufferCapacity),
		status: StatusStarting,
	}
}

func (b *persistentBackend) Start(ctx context.Context, exe string, args []string, cwd string, cols, rows int) error {
	b.mu.Lock()
	if b.host != nil {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.host = processhost.New(b.log)
	b.cwd = cwd
	b.mu.Unlock()

	b.host.OnExited(func(info processhost.ExitInfo) {
		b.setStatus(StatusExited)
		b.mu.Lock()
		cb := b.onExited
		b.mu.Unlock()
		if cb != nil {
			cb(info.ExitCode)
		}
	})

	if err := b.host.Start(exe, args, cwd, nil, cols, rows); err != nil {
		b.setStatus(StatusFailed)
		return err
	}
	b.host.StartDrainLoop(b.buf)
	b.host.StartExitMonitor()
	b.setStatus(StatusRunning)
	return nil
}

func (b *persistentBackend) Write(p []byte) error {
	if b.Status() != StatusRunning {
		return nil
	}
	return b.host.Write(p)
}

// SendText writes text, pauses SendTextPacingDelay so the agent's TUI can
// absorb it, then sends the line terminator. Large payloads are spilled to
// a temp file in cwd and the file reference is sent instead (spec.md §6.5).
func (b *persistentBackend) SendText(text string) error {
	payload, err := spillIfLarge(b.cwd, text)
	if err != nil {
		return err
	}
	if err := b.Write([]byte(payload)); err != nil {
		return err
	}
	time.Sleep(SendTextPacingDelay)
	return b.SendEnter()
}

func (b *persistentBackend) SendEnter() error {
	return b.Write([]byte(lineTerminator()))
}

func (b *persistentBackend) Resize(cols, rows int) error {
	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	if host == nil {
		return nil
	}
	return host.Resize(cols, rows)
}

func (b *persistentBackend) GracefulShutdown(timeout time.Duration) error {
	b.setStatus(StatusExiting)
	if b.host == nil {
		return nil
	}
	return b.host.GracefulShutdown(timeout)
}

func (b *persistentBackend) Buffer() *buffer.Ring { return b.buf }

func (b *persistentBackend) IsRunning() bool { return b.Status() == StatusRunning }

func (b *persistentBackend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *persistentBackend) setStatus(s Status) {
	b.mu.Lock()
	changed := b.status != s
	b.status = s
	cb := b.onStatusChanged
	b.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

func (b *persistentBackend) ProcessID() int {
	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	if host == nil {
		return 0
	}
	return host.ProcessID()
}

func (b *persistentBackend) OnProcessExited(fn func(int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onExited = fn
}

func (b *persistentBackend) OnStatusChanged(fn func(Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStatusChanged = fn
}

func (b *persistentBackend) AgentSessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agentSessionID
}

func (b *persistentBackend) SetAgentSessionID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agentSessionID = id
}

// spillIfLarge writes text to a temp file under dir and returns the
// `@<path>` reference if text exceeds LargeInputThreshold and dir is
// writable; otherwise it returns text unchanged. Temp-file naming follows
// the `.<prefix>-<random>` convention used elsewhere in the pack for
// scratch files (see internal/docgen's CreateTemp usage in the examples).
func spillIfLarge(dir, text string) (string, error) {
	if len(text) <= LargeInputThreshold || dir == "" {
		return text, nil
	}
	f, err := os.CreateTemp(dir, ".ccdirector-input-*.txt")
	if err != nil {
		// Directory not writable: fall back to sending the raw text rather
		// than failing the whole send.
		return text, nil
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return "", fmt.Errorf("spill large input: %w", err)
	}
	return "@" + filepath.Clean(f.Name()), nil
}
