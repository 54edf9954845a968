// Package session implements Session (spec.md §4.6): one logical session
// multiplexing user intent, backend I/O, and hook events, plus the
// two-stage identity verification described in §4.6b.
package session

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thefrederiksen/cc-director-sub002/internal/backend"
	"github.com/thefrederiksen/cc-director-sub002/internal/buffer"
	"github.com/thefrederiksen/cc-director-sub002/internal/hookevent"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
	"github.com/thefrederiksen/cc-director-sub002/internal/transcript"
)

// Status is the process lifecycle (spec.md §3): Starting → Running →
// (Exiting →)? Exited | Failed. Terminal states never transition back.
type Status int

const (
	Starting Status = iota
	Running
	Exiting
	Exited
	Failed
)

func (s Status) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Exiting:
		return "Exiting"
	case Exited:
		return "Exited"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s Status) Terminal() bool { return s == Exited || s == Failed }

// ActivityState is the agent's cognitive state inside a Session, distinct
// from Status (spec.md §3).
type ActivityState int

const (
	ActivityStarting ActivityState = iota
	ActivityIdle
	ActivityWorking
	ActivityWaitingForInput
	ActivityWaitingForPermission
	ActivityExited
)

func (a ActivityState) String() string {
	switch a {
	case ActivityStarting:
		return "Starting"
	case ActivityIdle:
		return "Idle"
	case ActivityWorking:
		return "Working"
	case ActivityWaitingForInput:
		return "WaitingForInput"
	case ActivityWaitingForPermission:
		return "WaitingForPermission"
	case ActivityExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// TerminalVerificationState is the vt10x-matched half of identity
// verification (spec.md §3).
type TerminalVerificationState int

const (
	TVWaiting TerminalVerificationState = iota
	TVPotential
	TVMatched
	TVFailed
)

func (s TerminalVerificationState) String() string {
	switch s {
	case TVWaiting:
		return "Waiting"
	case TVPotential:
		return "Potential"
	case TVMatched:
		return "Matched"
	case TVFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// TerminalMatchRatio is the prompt-containment threshold for both the
// probe and confirmation runs of terminal verification (spec.md §4.6b,
// resolved Open Question — see DESIGN.md).
const TerminalMatchRatio = 0.95

// ProbeLineThreshold distinguishes a probe run (< 50 lines observed) from
// a confirmation run (>= 50 lines observed), spec.md §4.6b.
const ProbeLineThreshold = 50

// Session multiplexes user intent, backend I/O, and hook events for one
// logical agent instance.
type Session struct {
	log *logging.Logger

	ID          string
	RepoPath    string
	Cwd         string
	BackendKind string
	CreatedAt   time.Time
	DisplayName string
	Color       string
	SortOrder   int

	// LastEmbeddedProcessID/LastEmbeddedConsoleHandle carry a restored
	// embedded session's last-known OS process id and console handle
	// (spec.md §3 PersistedSession). They are diagnostic only: per
	// spec.md §5's orphan policy the handle is process-local and cannot
	// be reattached across a host restart, so nothing in this package
	// ever reads them back into the live backend.
	LastEmbeddedProcessID     int
	LastEmbeddedConsoleHandle uintptr

	backend backend.Backend
	reader  *transcript.Reader

	mu                    sync.Mutex
	status                Status
	exitCode              *int
	draft                 string
	agentSessionID        string
	activityState         ActivityState
	fileVerification      transcript.VerifyStatus
	terminalVerification  TerminalVerificationState
	expectedFirstPrompt   string
	terminalVerifyRunning bool

	onAgentSessionChanged func(string)
}

// New constructs a Session wrapping an already-constructed Backend. The
// Session does not start the backend itself — callers (SessionManager)
// do, since backend construction/startup needs platform- and kind-
// specific arguments SessionManager owns.
func New(log *logging.Logger, id, repoPath, cwd, backendKind string, b backend.Backend, reader *transcript.Reader) *Session {
	if log == nil {
		log = logging.Default()
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		log:           log,
		ID:            id,
		RepoPath:      repoPath,
		Cwd:           cwd,
		BackendKind:   backendKind,
		CreatedAt:     time.Now(),
		backend:       b,
		reader:        reader,
		status:        Starting,
		activityState: ActivityStarting,
	}
	b.OnStatusChanged(func(bs backend.Status) { s.onBackendStatusChanged(bs) })
	b.OnProcessExited(func(code int) { s.onBackendExited(code) })
	return s
}

func (s *Session) onBackendStatusChanged(bs backend.Status) {
	switch bs {
	case backend.StatusRunning:
		s.setStatus(Running)
	case backend.StatusExiting:
		s.setStatus(Exiting)
	case backend.StatusFailed:
		s.setStatus(Failed)
	}
}

func (s *Session) onBackendExited(code int) {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.status = Exited
	s.exitCode = &code
	s.activityState = ActivityExited
	s.mu.Unlock()
}

func (s *Session) setStatus(newStatus Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = newStatus
}

// Status returns the current process lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ExitCode returns the exit code and whether one is present. It is present
// once the backend has reported the process exit (status Exited); a
// session that reached Failed through a backend status change has none.
func (s *Session) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCode == nil {
		return 0, false
	}
	return *s.exitCode, true
}

// AgentSessionID returns the bound AgentSessionId, or "" if unbound.
func (s *Session) AgentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentSessionID
}

// SetAgentSessionID binds or rebinds the session's AgentSessionId. Called
// by SessionManager under its routing-map discipline (spec.md §4.8); the
// Session itself does not enforce the uniqueness invariant.
func (s *Session) SetAgentSessionID(id string) {
	s.mu.Lock()
	s.agentSessionID = id
	cb := s.onAgentSessionChanged
	s.mu.Unlock()
	s.backend.SetAgentSessionID(id)
	if cb != nil {
		cb(id)
	}
}

// OnAgentSessionChanged registers a callback fired whenever
// SetAgentSessionID runs, so SessionManager can keep its routing map in
// sync without polling.
func (s *Session) OnAgentSessionChanged(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAgentSessionChanged = fn
}

// ActivityState returns the current cognitive state.
func (s *Session) ActivityState() ActivityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activityState
}

// FileVerification returns the current file-verification state.
func (s *Session) FileVerification() transcript.VerifyStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileVerification
}

// TerminalVerification returns the current terminal-verification state.
func (s *Session) TerminalVerification() TerminalVerificationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalVerification
}

// ExpectedFirstPrompt returns the first-prompt snippet this session
// expects its bound transcript to contain, established either by a
// terminal-match confirmation or by a prior successful file verification
// (spec.md §3, §5 crash-recovery contract).
func (s *Session) ExpectedFirstPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectedFirstPrompt
}

// SetExpectedFirstPrompt restores the expected first-prompt snippet onto a
// session reconstructed from persisted state (spec.md §4.8's restore
// path), so VerifyAgentSession can detect ContentMismatch against the
// right transcript instead of trusting an empty expectation.
func (s *Session) SetExpectedFirstPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedFirstPrompt = prompt
}

// Draft returns the unsent draft text, if any.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft stores unsent draft text (spec.md §3 PersistedSession field).
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Buffer exposes the backend's circular terminal buffer, if any.
func (s *Session) Buffer() *buffer.Ring { return s.backend.Buffer() }

// SendInput forwards raw bytes to the backend. Writes are silently
// ignored once the session has reached a terminal status (spec.md §4.6).
func (s *Session) SendInput(p []byte) error {
	if s.Status().Terminal() {
		return nil
	}
	return s.backend.Write(p)
}

// SendText forwards text to the backend and implicitly transitions
// activity state to Working on success (spec.md §4.6).
func (s *Session) SendText(text string) error {
	if s.Status().Terminal() {
		return nil
	}
	if err := s.backend.SendText(text); err != nil {
		return err
	}
	s.mu.Lock()
	s.activityState = ActivityWorking
	s.mu.Unlock()
	return nil
}

// SendEnter forwards a bare line terminator to the backend.
func (s *Session) SendEnter() error {
	if s.Status().Terminal() {
		return nil
	}
	return s.backend.SendEnter()
}

// Resize forwards to the backend (no-op in pipe mode).
func (s *Session) Resize(cols, rows int) error {
	return s.backend.Resize(cols, rows)
}

// Kill transitions status to Exiting and invokes the backend's graceful
// shutdown (spec.md §4.6).
func (s *Session) Kill(timeout time.Duration) error {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.status = Exiting
	s.mu.Unlock()
	return s.backend.GracefulShutdown(timeout)
}

// VerifyAgentSession runs file verification against the agent's on-disk
// transcript and caches the result (spec.md §4.6).
func (s *Session) VerifyAgentSession() (transcript.VerifyResult, error) {
	agentID := s.AgentSessionID()
	if agentID == "" {
		return transcript.VerifyResult{Status: transcript.NotLinked}, nil
	}

	s.mu.Lock()
	expected := s.expectedFirstPrompt
	s.mu.Unlock()

	result, err := s.reader.VerifySessionFile(agentID, s.RepoPath, expected)
	if err != nil {
		return transcript.VerifyResult{}, err
	}

	s.mu.Lock()
	s.fileVerification = result.Status
	if result.Status == transcript.Verified {
		// Capture the confirmed snippet as the expectation going forward,
		// even when no terminal match ever ran, so a later persist/restore
		// round-trip has real content to detect ContentMismatch against
		// (spec.md §3, §5).
		s.expectedFirstPrompt = result.FirstPromptSnippet
	}
	s.mu.Unlock()
	return result, nil
}

// MarkAsPreVerified sets terminal verification to Matched and suppresses
// further terminal matching, for restored sessions that already carry an
// AgentSessionId (spec.md §4.6).
func (s *Session) MarkAsPreVerified() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminalVerification = TVMatched
}

// activityTransitions implements the hook-event → ActivityState table
// (spec.md §4.6). Events not present here leave the state unchanged.
var activityTransitions = map[hookevent.Name]ActivityState{
	hookevent.Stop:               ActivityWaitingForInput,
	hookevent.PermissionRequest:  ActivityWaitingForPermission,
	hookevent.UserPromptSubmit:   ActivityWorking,
	hookevent.PreToolUse:         ActivityWorking,
	hookevent.PostToolUse:        ActivityWorking,
	hookevent.PostToolUseFailure: ActivityWorking,
	hookevent.SubagentStart:      ActivityWorking,
	hookevent.SubagentStop:       ActivityWorking,
	hookevent.TaskCompleted:      ActivityWorking,
	hookevent.SessionStart:       ActivityIdle,
	hookevent.SessionEnd:         ActivityExited,
}

// stickyEscapeEvents are the only events allowed to leave
// WaitingForInput (spec.md §4.6's sticky-green rule).
var stickyEscapeEvents = map[hookevent.Name]bool{
	hookevent.UserPromptSubmit:  true,
	hookevent.SessionEnd:        true,
	hookevent.PermissionRequest: true,
}

// HandleHookEvent applies the activity-state transition table, honoring
// the sticky-green rule: once WaitingForInput, only UserPromptSubmit,
// SessionEnd, PermissionRequest, or a permission-prompt Notification may
// leave that state (spec.md §4.6).
func (s *Session) HandleHookEvent(event hookevent.HookEvent) {
	target, known := activityTransitions[event.HookEventName]
	if event.IsPermissionPromptNotification() {
		target, known = ActivityWaitingForPermission, true
	} else if !known && event.HookEventName == hookevent.Notification {
		target, known = ActivityWaitingForInput, true
	}
	if !known {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activityState == ActivityWaitingForInput {
		allowed := stickyEscapeEvents[event.HookEventName] || event.IsPermissionPromptNotification()
		if !allowed {
			return
		}
	}
	s.activityState = target
}

// VerifyWithTerminalContent runs terminal-based identity verification
// (spec.md §4.6b). rawTerminalText is the rendered terminal content (the
// caller renders PTY buffer bytes through a headless vt10x terminal —
// see internal/session/terminalmatch.go); lineCount distinguishes a probe
// run (< ProbeLineThreshold) from a confirmation run. Once Matched,
// further attempts are no-ops (monotonicity invariant, spec.md §8).
// terminalVerifyRunning, checked and set under s.mu, is the compare-and-
// swap gate: a call arriving while another attempt is running returns nil
// at once without matching.
func (s *Session) VerifyWithTerminalContent(rawTerminalText string, lineCount int) error {
	s.mu.Lock()
	if s.terminalVerification == TVMatched {
		s.mu.Unlock()
		return nil
	}
	if s.terminalVerifyRunning {
		s.mu.Unlock()
		return nil
	}
	s.terminalVerifyRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.terminalVerifyRunning = false
		s.mu.Unlock()
	}()

	candidates, err := s.reader.ListProjectTranscripts(s.RepoPath)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		s.mu.Lock()
		s.terminalVerification = TVFailed
		s.mu.Unlock()
		return nil
	}

	ordered := orderCandidates(candidates, s.CreatedAt)

	isConfirmation := lineCount >= ProbeLineThreshold
	for _, candidate := range ordered {
		prompts, err := s.reader.ExtractUserPrompts(filepath.Join(candidate.ProjectDir, candidate.ID+".jsonl"))
		if err != nil || len(prompts) == 0 {
			continue
		}
		ratio := matchRatio(rawTerminalText, prompts)
		if ratio < TerminalMatchRatio {
			continue
		}

		s.mu.Lock()
		s.agentSessionID = candidate.ID
		if isConfirmation {
			s.terminalVerification = TVMatched
			s.expectedFirstPrompt = prompts[0]
		} else {
			s.terminalVerification = TVPotential
		}
		s.mu.Unlock()
		s.backend.SetAgentSessionID(candidate.ID)

		if isConfirmation {
			if _, err := s.VerifyAgentSession(); err != nil {
				s.log.WithError(err).Warn("session: file verification after terminal match failed")
			}
		}
		return nil
	}

	if isConfirmation {
		s.mu.Lock()
		s.terminalVerification = TVFailed
		s.mu.Unlock()
	}
	return nil
}

// orderCandidates partitions candidates into those last-modified within
// one hour of sessionCreatedAt (tried first) and the rest, each group
// retaining ScanAllProjects/ListProjectTranscripts' newest-first order
// (spec.md §4.6b candidate ordering).
func orderCandidates(candidates []transcript.TranscriptInfo, sessionCreatedAt time.Time) []transcript.TranscriptInfo {
	var recent, older []transcript.TranscriptInfo
	for _, c := range candidates {
		delta := c.LastModified.Sub(sessionCreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= time.Hour {
			recent = append(recent, c)
		} else {
			older = append(older, c)
		}
	}
	return append(recent, older...)
}

// matchRatio computes the fraction of prompts found verbatim within
// terminalText (spec.md §4.6b's prompt-containment ratio).
func matchRatio(terminalText string, prompts []string) float64 {
	if len(prompts) == 0 {
		return 0
	}
	matches := 0
	for _, p := range prompts {
		if p != "" && strings.Contains(terminalText, p) {
			matches++
		}
	}
	return float64(matches) / float64(len(prompts))
}
