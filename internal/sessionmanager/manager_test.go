package sessionmanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefrederiksen/cc-director-sub002/internal/backend"
	"github.com/thefrederiksen/cc-director-sub002/internal/buffer"
	"github.com/thefrederiksen/cc-director-sub002/internal/store"
	"github.com/thefrederiksen/cc-director-sub002/internal/transcript"
)

// fakeEmbeddedBackend is a minimal backend.Backend used only to exercise
// RestoreEmbeddedSession/SaveSessionState, since constructing a real
// embedded backend requires Windows.
type fakeEmbeddedBackend struct {
	agentSessionID string
}

func (f *fakeEmbeddedBackend) Start(context.Context, string, []string, string, int, int) error {
	return nil
}
func (f *fakeEmbeddedBackend) Write([]byte) error                          { return nil }
func (f *fakeEmbeddedBackend) SendText(string) error                       { return nil }
func (f *fakeEmbeddedBackend) SendEnter() error                            { return nil }
func (f *fakeEmbeddedBackend) Resize(int, int) error                       { return nil }
func (f *fakeEmbeddedBackend) GracefulShutdown(time.Duration) error        { return nil }
func (f *fakeEmbeddedBackend) Buffer() *buffer.Ring                        { return nil }
func (f *fakeEmbeddedBackend) IsRunning() bool                             { return true }
func (f *fakeEmbeddedBackend) Status() backend.Status                     { return backend.StatusRunning }
func (f *fakeEmbeddedBackend) ProcessID() int                             { return 4242 }
func (f *fakeEmbeddedBackend) OnProcessExited(fn func(exitCode int))      {}
func (f *fakeEmbeddedBackend) OnStatusChanged(fn func(backend.Status))    {}
func (f *fakeEmbeddedBackend) AgentSessionID() string                     { return f.agentSessionID }
func (f *fakeEmbeddedBackend) SetAgentSessionID(id string)                { f.agentSessionID = id }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reader := transcript.New(filepath.Join(t.TempDir(), "transcripts"))
	return New(nil, "echo", time.Second, reader)
}

func TestManager_CreateSessionRejectsMissingDirectory(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateSession(filepath.Join(t.TempDir(), "does-not-exist"), "", nil, backend.PipeBackendKind, "")
	var notFound *ErrDirectoryNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestManager_CreatePipeModeSessionAndGet(t *testing.T) {
	m := newTestManager(t)
	repo := t.TempDir()

	s, err := m.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Len(t, m.List(), 1)
}

func TestManager_CreateEmbeddedSessionRejectedOffWindows(t *testing.T) {
	if isWindows() {
		t.Skip("embedded sessions are supported on windows")
	}
	m := newTestManager(t)
	repo := t.TempDir()
	_, err := m.CreateEmbeddedSession(repo, repo, nil)
	assert.ErrorIs(t, err, ErrEmbeddedNotSupported)
}

func TestManager_RegisterAgentSessionRejectsConflictingRebind(t *testing.T) {
	m := newTestManager(t)
	repo := t.TempDir()

	sA, err := m.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)
	sB, err := m.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)

	require.NoError(t, m.RegisterAgentSession("agent-1", sA.ID))
	// Idempotent re-registration of the same pair is a no-op.
	require.NoError(t, m.RegisterAgentSession("agent-1", sA.ID))

	err = m.RegisterAgentSession("agent-1", sB.ID)
	var conflict *ErrAgentSessionAlreadyBound
	require.ErrorAs(t, err, &conflict)
}

func TestManager_FindUnmatchedSessionOnlyReturnsEmptySlots(t *testing.T) {
	m := newTestManager(t)
	repo := t.TempDir()

	s, err := m.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)

	found, ok := m.FindUnmatchedSession(repo)
	require.True(t, ok)
	assert.Equal(t, s.ID, found.ID)

	require.NoError(t, m.RegisterAgentSession("agent-9", s.ID))
	_, ok = m.FindUnmatchedSession(repo)
	assert.False(t, ok)
}

func TestManager_SaveAndLoadPersistedSessionsRepairsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s := store.NewSessionStateStore(path)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Save([]store.PersistedSession{
		{SchemaVersion: store.CurrentSchemaVersion, SessionID: "s1", AgentSessionID: "dup", CreatedAt: now, SortOrder: 0},
		{SchemaVersion: store.CurrentSchemaVersion, SessionID: "s2", AgentSessionID: "dup", CreatedAt: now, SortOrder: 1},
	}))

	m := newTestManager(t)
	plan, err := m.LoadPersistedSessions(s)
	require.NoError(t, err)
	require.False(t, plan.FileExistedButFailed)
	require.Len(t, plan.Entries, 2)
	assert.Equal(t, "dup", plan.Entries[0].AgentSessionID)
	assert.Empty(t, plan.Entries[1].AgentSessionID)
}

func TestManager_LoadPersistedSessionsReportsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	m := newTestManager(t)
	plan, err := m.LoadPersistedSessions(store.NewSessionStateStore(path))
	require.NoError(t, err)
	assert.True(t, plan.FileExistedButFailed)
}

func TestManager_KillAllSessionsAndDispose(t *testing.T) {
	m := newTestManager(t)
	repo := t.TempDir()

	_, err := m.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)
	_, err = m.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)

	m.Dispose()
	assert.Empty(t, m.List())
}

func TestManager_SaveSessionStateWithHwndProviderPersistsEmbeddedHandle(t *testing.T) {
	m := newTestManager(t)
	repo := t.TempDir()

	s := m.RestoreEmbeddedSession(store.PersistedSession{
		SessionID: "embedded-1",
		RepoPath:  repo,
		Cwd:       repo,
	}, &fakeEmbeddedBackend{}, false)
	require.NotNil(t, s)

	path := filepath.Join(t.TempDir(), "sessions.json")
	stateStore := store.NewSessionStateStore(path)

	hwndProvider := func(sessionID string) (int, uintptr, bool) {
		if sessionID != s.ID {
			return 0, 0, false
		}
		return 1234, 0xdeadbeef, true
	}
	require.NoError(t, m.SaveSessionState(stateStore, hwndProvider))

	loaded, err := stateStore.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, 1234, loaded.Sessions[0].EmbeddedProcessID)
	assert.Equal(t, uintptr(0xdeadbeef), loaded.Sessions[0].EmbeddedConsoleHandle)
}

func TestManager_RestoreEmbeddedSessionRoundTripsHandleAndExpectedFirstPrompt(t *testing.T) {
	m := newTestManager(t)
	repo := t.TempDir()

	persisted := store.PersistedSession{
		SessionID:             "embedded-2",
		RepoPath:              repo,
		Cwd:                   repo,
		ExpectedFirstPrompt:   "please refactor the auth module",
		EmbeddedProcessID:     5555,
		EmbeddedConsoleHandle: 0x1000,
	}
	s := m.RestoreEmbeddedSession(persisted, &fakeEmbeddedBackend{}, false)

	assert.Equal(t, "please refactor the auth module", s.ExpectedFirstPrompt())
	assert.Equal(t, 5555, s.LastEmbeddedProcessID)
	assert.Equal(t, uintptr(0x1000), s.LastEmbeddedConsoleHandle)
}

func isWindows() bool { return os.PathSeparator == '\\' }
