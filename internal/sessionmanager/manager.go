// Package sessionmanager implements SessionManager (spec.md §4.8): the
// owner of every live Session and the two routing maps (SessionId →
// Session, AgentSessionId → SessionId) that keep identity bindings
// unique.
package sessionmanager

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thefrederiksen/cc-director-sub002/internal/backend"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
	"github.com/thefrederiksen/cc-director-sub002/internal/session"
	"github.com/thefrederiksen/cc-director-sub002/internal/store"
	"github.com/thefrederiksen/cc-director-sub002/internal/transcript"
)

// InitialCols/InitialRows are the starting PTY dimensions every new
// session is launched with (spec.md §4.8).
const (
	InitialCols = 120
	InitialRows = 30
)

// ErrEmbeddedNotSupported surfaces when embedded-mode creation is
// requested off Windows (spec.md §4.8, §7).
var ErrEmbeddedNotSupported = fmt.Errorf("sessionmanager: embedded backend is only supported on windows")

// ErrDirectoryNotFound surfaces on create/restore when repo does not
// exist (spec.md §7).
type ErrDirectoryNotFound struct{ Path string }

func (e *ErrDirectoryNotFound) Error() string {
	return fmt.Sprintf("sessionmanager: directory not found: %s", e.Path)
}

// ErrAgentSessionAlreadyBound surfaces when register_agent_session would
// overwrite an existing, different binding (spec.md §4.8, §8 round-trip
// idempotence property).
type ErrAgentSessionAlreadyBound struct {
	AgentSessionID string
	BoundTo        string
}

func (e *ErrAgentSessionAlreadyBound) Error() string {
	return fmt.Sprintf("sessionmanager: agent session %q already bound to session %q", e.AgentSessionID, e.BoundTo)
}

// Manager owns every live Session plus the AgentSessionId routing map
// (spec.md §4.8).
type Manager struct {
	log             *logging.Logger
	agentExecutable string
	gracefulTimeout time.Duration
	reader          *transcript.Reader

	mu               sync.RWMutex
	sessionsByID     map[string]*session.Session
	sessionIDByAgent map[string]string

	onAgentSessionRegistered func(sessionID, agentSessionID string)
}

// New constructs a Manager. agentExecutable is the agent binary path used
// to launch new sessions; gracefulTimeout bounds kill_session's wait
// before escalating to a forced kill.
func New(log *logging.Logger, agentExecutable string, gracefulTimeout time.Duration, reader *transcript.Reader) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		log:              log,
		agentExecutable:  agentExecutable,
		gracefulTimeout:  gracefulTimeout,
		reader:           reader,
		sessionsByID:     make(map[string]*session.Session),
		sessionIDByAgent: make(map[string]string),
	}
}

// OnAgentSessionRegistered registers a callback fired whenever
// RegisterAgentSession succeeds (spec.md §4.8).
func (m *Manager) OnAgentSessionRegistered(fn func(sessionID, agentSessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAgentSessionRegistered = fn
}

func validateDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return &ErrDirectoryNotFound{Path: path}
	}
	return nil
}

// CreateSession validates repo, selects a backend by kind, starts it at
// the standard initial dimensions, and registers the new Session (spec.md
// §4.8). If resumeAgentSessionID is non-empty, the resume argument is
// appended to args, the session's AgentSessionId is pre-populated, and it
// is inserted into the routing map before any hook event can arrive, so
// an unrelated orphan process cannot hijack the binding.
func (m *Manager) CreateSession(repo, cwd string, args []string, backendKind, resumeAgentSessionID string) (*session.Session, error) {
	if err := validateDirectory(repo); err != nil {
		return nil, err
	}

	b, err := m.newBackend(backendKind, nil)
	if err != nil {
		return nil, err
	}

	launchArgs := append([]string{}, args...)
	if resumeAgentSessionID != "" {
		launchArgs = append(launchArgs, "--resume", resumeAgentSessionID)
	}

	ctx := context.Background()
	if err := b.Start(ctx, m.agentExecutable, launchArgs, cwd, InitialCols, InitialRows); err != nil {
		return nil, fmt.Errorf("sessionmanager: start backend: %w", err)
	}

	s := session.New(m.log, "", repo, cwd, backendKind, b, m.reader)
	if resumeAgentSessionID != "" {
		s.SetAgentSessionID(resumeAgentSessionID)
		m.mu.Lock()
		m.sessionIDByAgent[resumeAgentSessionID] = s.ID
		m.mu.Unlock()
	}

	m.addSession(s)
	return s, nil
}

// CreatePipeModeSession is a convenience constructor for the print-mode
// backend (spec.md §4.8).
func (m *Manager) CreatePipeModeSession(repo, cwd string) (*session.Session, error) {
	return m.CreateSession(repo, cwd, nil, backend.PipeBackendKind, "")
}

// CreateEmbeddedSession registers an already-constructed embedded-mode
// backend; embedded mode is Windows-only and the UI layer (not
// SessionManager) owns construction of its console handle (spec.md
// §4.8).
func (m *Manager) CreateEmbeddedSession(repo, cwd string, b backend.Backend) (*session.Session, error) {
	if runtime.GOOS != "windows" {
		return nil, ErrEmbeddedNotSupported
	}
	if err := validateDirectory(repo); err != nil {
		return nil, err
	}
	s := session.New(m.log, "", repo, cwd, backend.EmbeddedBackendKind, b, m.reader)
	m.addSession(s)
	return s, nil
}

func (m *Manager) newBackend(kind string, embedded backend.Backend) (backend.Backend, error) {
	switch kind {
	case backend.PersistentBackendKind:
		return backend.NewPersistentBackend(m.log), nil
	case backend.PipeBackendKind:
		return backend.NewPipeBackend(m.log), nil
	case backend.EmbeddedBackendKind:
		if runtime.GOOS != "windows" {
			return nil, ErrEmbeddedNotSupported
		}
		if embedded == nil {
			return nil, &backend.ErrBackendUnavailable{Kind: kind, Reason: "embedded backend must be supplied by the UI layer"}
		}
		return embedded, nil
	default:
		return nil, &backend.ErrBackendUnavailable{Kind: kind, Reason: "unknown backend kind"}
	}
}

func (m *Manager) addSession(s *session.Session) {
	s.OnAgentSessionChanged(func(agentID string) {
		m.onSessionAgentIDChanged(s.ID, agentID)
	})
	m.mu.Lock()
	m.sessionsByID[s.ID] = s
	m.mu.Unlock()
}

func (m *Manager) onSessionAgentIDChanged(sessionID, agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sid := range m.sessionIDByAgent {
		if sid == sessionID && id != agentID {
			delete(m.sessionIDByAgent, id)
		}
	}
	if agentID != "" {
		m.sessionIDByAgent[agentID] = sessionID
	}
}

// Get returns a live Session by its SessionId.
func (m *Manager) Get(sessionID string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessionsByID[sessionID]
	return s, ok
}

// List returns every live Session, unordered.
func (m *Manager) List() []*session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*session.Session, 0, len(m.sessionsByID))
	for _, s := range m.sessionsByID {
		result = append(result, s)
	}
	return result
}

// GetByAgentSessionID returns the live Session currently bound to
// agentSessionID, if any (spec.md §4.10 routing lookup).
func (m *Manager) GetByAgentSessionID(agentSessionID string) (*session.Session, bool) {
	m.mu.RLock()
	sessionID, ok := m.sessionIDByAgent[agentSessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Get(sessionID)
}

// KillSession delegates to the session's Kill with the manager's
// configured graceful timeout (spec.md §4.8).
func (m *Manager) KillSession(sessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("sessionmanager: session %q not found", sessionID)
	}
	return s.Kill(m.gracefulTimeout)
}

// RegisterAgentSession binds agentSessionID to sessionID. Binding the
// same pair again is a no-op; binding a different session to an already-
// bound agentSessionID is rejected (spec.md §4.8, §8). On success it
// triggers file verification and fires OnAgentSessionRegistered.
func (m *Manager) RegisterAgentSession(agentSessionID, sessionID string) error {
	m.mu.Lock()
	if existing, ok := m.sessionIDByAgent[agentSessionID]; ok {
		if existing == sessionID {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		return &ErrAgentSessionAlreadyBound{AgentSessionID: agentSessionID, BoundTo: existing}
	}
	s, ok := m.sessionsByID[sessionID]
	m.sessionIDByAgent[agentSessionID] = sessionID
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("sessionmanager: session %q not found", sessionID)
	}
	s.SetAgentSessionID(agentSessionID)

	if result, err := s.VerifyAgentSession(); err == nil && result.Status == transcript.Verified {
		s.MarkAsPreVerified()
	}

	m.mu.RLock()
	cb := m.onAgentSessionRegistered
	m.mu.RUnlock()
	if cb != nil {
		cb(sessionID, agentSessionID)
	}
	return nil
}

// RelinkAgentSession clears any existing binding for sessionID's current
// AgentSessionId, then binds newAgentSessionID (spec.md §4.8's explicit
// rebind).
func (m *Manager) RelinkAgentSession(sessionID, newAgentSessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("sessionmanager: session %q not found", sessionID)
	}

	m.mu.Lock()
	if old := s.AgentSessionID(); old != "" {
		delete(m.sessionIDByAgent, old)
	}
	m.mu.Unlock()

	return m.RegisterAgentSession(newAgentSessionID, sessionID)
}

// FindUnmatchedSession returns a session whose RepoPath or Cwd matches cwd
// (any session when cwd is empty) and that has no AgentSessionId — the
// heuristic auto-registration lookup EventRouter uses for orphaned hook
// events (spec.md §4.8). Only Exited and Failed sessions are skipped; a
// session still in Starting or Exiting can be returned.
func (m *Manager) FindUnmatchedSession(cwd string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessionsByID {
		if s.Status().Terminal() {
			continue
		}
		if s.AgentSessionID() != "" {
			continue
		}
		if cwd != "" && s.RepoPath != cwd && s.Cwd != cwd {
			continue
		}
		return s, true
	}
	return nil, false
}

// ScanForOrphans enumerates agent processes by image name and logs them;
// it never attempts adoption (spec.md §4.8, §5 orphan policy) — a ConPTY/
// UnixPty handle is process-local and cannot be reattached across a host
// restart.
func (m *Manager) ScanForOrphans(processImageName string) {
	pids, err := findProcessesByName(processImageName)
	if err != nil {
		m.log.Warn("sessionmanager: orphan scan failed", zap.Error(err))
		return
	}
	for _, pid := range pids {
		m.log.Info("sessionmanager: found orphaned agent process on startup", zap.Int("pid", pid), zap.String("image", processImageName))
	}
}

// KillAllSessions kills every live session with the manager's configured
// graceful timeout, continuing past individual failures.
func (m *Manager) KillAllSessions() {
	for _, s := range m.List() {
		if err := s.Kill(m.gracefulTimeout); err != nil {
			m.log.Warn("sessionmanager: kill_all_sessions: error killing session", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

// RemoveSession drops sessionID (and any agent binding pointing at it)
// from the manager without killing it — used after a session has already
// reached a terminal state.
func (m *Manager) RemoveSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessionsByID, sessionID)
	for agentID, sid := range m.sessionIDByAgent {
		if sid == sessionID {
			delete(m.sessionIDByAgent, agentID)
		}
	}
}

// Dispose kills every live session and clears both routing maps.
func (m *Manager) Dispose() {
	m.KillAllSessions()
	m.mu.Lock()
	m.sessionsByID = make(map[string]*session.Session)
	m.sessionIDByAgent = make(map[string]string)
	m.mu.Unlock()
}

// SaveCurrentState serializes every running session plus any session
// with a known AgentSessionId, ordered by SortOrder (spec.md §4.8's
// save_current_state(store)). Embedded sessions are saved without
// process id/console handle data; use SaveSessionState for that.
func (m *Manager) SaveCurrentState(s *store.SessionStateStore) error {
	return m.SaveSessionState(s, nil)
}

// HwndProvider resolves the OS-level process id and console handle for a
// live embedded-mode session. Manager's Backend interface intentionally
// carries no console-handle accessor (it is a Windows-only, UI-owned
// resource supplied to CreateEmbeddedSession in the first place), so
// save_session_state takes this as a callback instead (spec.md §4.8).
type HwndProvider func(sessionID string) (processID int, consoleHandle uintptr, ok bool)

// SaveSessionState implements spec.md §4.8's
// save_session_state(store, hwnd_provider): like SaveCurrentState, but for
// every EmbeddedBackendKind session it also asks hwndProvider for the
// process id/console handle to persist alongside it. Per spec.md §5's
// orphan policy the handle is still process-local and unusable to
// reattach after a host restart — persisting it is for diagnostics only
// (RestoreEmbeddedSession surfaces the last-known values on the
// reconstructed Session, it never uses them to reattach).
func (m *Manager) SaveSessionState(s *store.SessionStateStore, hwndProvider HwndProvider) error {
	sessions := m.List()
	persisted := make([]store.PersistedSession, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Status().Terminal() && sess.AgentSessionID() == "" {
			continue
		}
		p := toPersisted(sess)
		if sess.BackendKind == backend.EmbeddedBackendKind && hwndProvider != nil {
			if pid, hwnd, ok := hwndProvider(sess.ID); ok {
				p.EmbeddedProcessID = pid
				p.EmbeddedConsoleHandle = hwnd
			}
		}
		persisted = append(persisted, p)
	}
	sortBySortOrder(persisted)
	return s.Save(persisted)
}

func toPersisted(s *session.Session) store.PersistedSession {
	return store.PersistedSession{
		SchemaVersion:       store.CurrentSchemaVersion,
		SessionID:           s.ID,
		RepoPath:            s.RepoPath,
		Cwd:                 s.Cwd,
		DisplayName:         s.DisplayName,
		Color:               s.Color,
		Draft:               s.Draft(),
		AgentSessionID:      s.AgentSessionID(),
		ActivityState:       s.ActivityState().String(),
		CreatedAt:           s.CreatedAt,
		SortOrder:           s.SortOrder,
		ExpectedFirstPrompt: s.ExpectedFirstPrompt(),
	}
}

func sortBySortOrder(sessions []store.PersistedSession) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].SortOrder < sessions[j-1].SortOrder; j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}

// RestorePlan is the result of LoadPersistedSessions: the entries to
// restore, plus whether the state file existed but failed to parse
// (spec.md §4.8, §7 PersistenceLoadFailure).
type RestorePlan struct {
	Entries              []store.PersistedSession
	FileExistedButFailed bool
	Diagnostic           string
}

// LoadPersistedSessions reads the state store, detecting and scrubbing
// duplicate AgentSessionIds across entries: when two entries share an
// AgentSessionId, the one appearing later in the file has its binding
// cleared so it rebinds fresh on next activity (spec.md §4.7 "repaired on
// load", §8 scenario 6).
func (m *Manager) LoadPersistedSessions(s *store.SessionStateStore) (RestorePlan, error) {
	res, err := s.Load()
	if err != nil {
		return RestorePlan{}, err
	}
	if res.FileExistedButFailed {
		return RestorePlan{FileExistedButFailed: true, Diagnostic: res.Diagnostic}, nil
	}

	seen := make(map[string]bool, len(res.Sessions))
	entries := make([]store.PersistedSession, len(res.Sessions))
	for i, entry := range res.Sessions {
		if entry.AgentSessionID != "" {
			if seen[entry.AgentSessionID] {
				m.log.Warn("sessionmanager: duplicate agent session id on load, clearing",
					zap.String("agent_session_id", entry.AgentSessionID),
					zap.String("session_id", entry.SessionID))
				entry.AgentSessionID = ""
			} else {
				seen[entry.AgentSessionID] = true
			}
		}
		entries[i] = entry
	}
	return RestorePlan{Entries: entries}, nil
}

// RestoreEmbeddedSession reconstructs a live Session from a persisted
// entry and a UI-supplied backend. If duplicateAgentSessionID is true
// (the caller already detected a collision via LoadPersistedSessions),
// the restored session's AgentSessionId is cleared to force fresh
// binding (spec.md §4.8).
func (m *Manager) RestoreEmbeddedSession(persisted store.PersistedSession, b backend.Backend, duplicateAgentSessionID bool) *session.Session {
	s := session.New(m.log, persisted.SessionID, persisted.RepoPath, persisted.Cwd, backend.EmbeddedBackendKind, b, m.reader)
	s.DisplayName = persisted.DisplayName
	s.Color = persisted.Color
	s.SortOrder = persisted.SortOrder
	s.SetDraft(persisted.Draft)
	s.SetExpectedFirstPrompt(persisted.ExpectedFirstPrompt)
	s.LastEmbeddedProcessID = persisted.EmbeddedProcessID
	s.LastEmbeddedConsoleHandle = persisted.EmbeddedConsoleHandle

	agentID := persisted.AgentSessionID
	if duplicateAgentSessionID {
		agentID = ""
	}

	m.addSession(s)
	if agentID != "" {
		s.SetAgentSessionID(agentID)
		m.mu.Lock()
		m.sessionIDByAgent[agentID] = s.ID
		m.mu.Unlock()
		s.MarkAsPreVerified()
	}
	return s
}
