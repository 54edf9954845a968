package backend

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/thefrederiksen/cc-director-sub002/internal/buffer"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
)

// PipeBackend spawns a new short-lived agent process per SendText call,
// in print mode (spec.md §4.4). A single-permit semaphore enforces
// at-most-one in-flight invocation; concurrent SendText calls beyond the
// first are no-ops until the in-flight one completes.
type PipeBackend struct {
	log  *logging.Logger
	exe  string
	cwd  string
	buf  *buffer.Ring
	sema *semaphore.Weighted

	mu             sync.Mutex
	status         Status
	agentSessionID string
	lastExitCode   int

	onExited        func(int)
	onStatusChanged func(Status)
}

// NewPipeBackend constructs an unstarted PipeBackend.
func NewPipeBackend(log *logging.Logger) *PipeBackend {
	if log == nil {
		log = logging.Default()
	}
	return &PipeBackend{
		log:    log,
		buf:    buffer.New(bufferCapacity),
		sema:   semaphore.NewWeighted(1),
		status: StatusStarting,
	}
}

// Start records the executable and working directory; unlike the
// persistent variants it spawns nothing yet — each SendText spawns its own
// process (spec.md §4.4).
func (p *PipeBackend) Start(ctx context.Context, exe string, args []string, cwd string, cols, rows int) error {
	p.mu.Lock()
	if p.exe != "" {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.exe = exe
	p.cwd = cwd
	p.mu.Unlock()
	p.setStatus(StatusRunning)
	return nil
}

// Write is a no-op for PipeBackend: there is no persistent stdin to target
// between invocations.
func (p *PipeBackend) Write(data []byte) error { return nil }

// SendText spawns a fresh `<exe> -p [--resume <id>] <text>` process. Only
// one invocation may be in flight; a call arriving while one is already
// running returns immediately without spawning (spec.md §8 boundary
// behavior).
func (p *PipeBackend) SendText(text string) error {
	if !p.sema.TryAcquire(1) {
		return nil
	}
	go p.runInvocation(text)
	return nil
}

func (p *PipeBackend) runInvocation(text string) {
	defer p.sema.Release(1)

	p.buf.Write([]byte("> " + text + "\n\n"))

	p.mu.Lock()
	exe, cwd, resumeID := p.exe, p.cwd, p.agentSessionID
	p.mu.Unlock()

	promptArg, err := spillIfLarge(cwd, text)
	if err != nil {
		p.log.WithError(err).Warn("pipe backend: large-input spill failed")
		p.finishInvocation(1)
		return
	}

	args := []string{"-p"}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}
	args = append(args, promptArg)

	cmd := exec.Command(exe, args...)
	cmd.Dir = cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.log.WithError(err).Warn("pipe backend: stdout pipe failed")
		p.finishInvocation(1)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.log.WithError(err).Warn("pipe backend: stderr pipe failed")
		p.finishInvocation(1)
		return
	}

	if err := cmd.Start(); err != nil {
		p.log.WithError(err).Warn("pipe backend: spawn failed")
		p.finishInvocation(1)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		drainInto(p.buf, stdout)
	}()
	go func() {
		defer wg.Done()
		logStderr(p.log, stderr)
	}()
	wg.Wait()

	err = cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}
	p.finishInvocation(exitCode)
}

func (p *PipeBackend) finishInvocation(exitCode int) {
	p.mu.Lock()
	p.lastExitCode = exitCode
	// Clear AgentSessionId so the next SendText binds a fresh one
	// (spec.md §4.4 PipeBackend variant).
	p.agentSessionID = ""
	cb := p.onExited
	p.mu.Unlock()
	if cb != nil {
		cb(exitCode)
	}
}

func drainInto(buf *buffer.Ring, r io.Reader) {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			return
		}
	}
}

func logStderr(log *logging.Logger, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Warn("pipe backend: agent stderr: " + scanner.Text())
	}
}

func (p *PipeBackend) SendEnter() error { return nil }

// Resize is a no-op in pipe mode: there is no persistent PTY window.
func (p *PipeBackend) Resize(cols, rows int) error { return nil }

// GracefulShutdown has nothing persistent to stop; any in-flight
// invocation is left to finish on its own since it is already a one-shot
// print-mode call expected to exit promptly.
func (p *PipeBackend) GracefulShutdown(_ time.Duration) error {
	return nil
}

func (p *PipeBackend) Buffer() *buffer.Ring { return p.buf }

func (p *PipeBackend) IsRunning() bool { return p.Status() == StatusRunning }

func (p *PipeBackend) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *PipeBackend) setStatus(s Status) {
	p.mu.Lock()
	changed := p.status != s
	p.status = s
	cb := p.onStatusChanged
	p.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

func (p *PipeBackend) ProcessID() int { return 0 }

func (p *PipeBackend) OnProcessExited(fn func(int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExited = fn
}

func (p *PipeBackend) OnStatusChanged(fn func(Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatusChanged = fn
}

func (p *PipeBackend) AgentSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agentSessionID
}

func (p *PipeBackend) SetAgentSessionID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agentSessionID = id
}
