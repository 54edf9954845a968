package router

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefrederiksen/cc-director-sub002/internal/hookevent"
	"github.com/thefrederiksen/cc-director-sub002/internal/session"
	"github.com/thefrederiksen/cc-director-sub002/internal/sessionmanager"
	"github.com/thefrederiksen/cc-director-sub002/internal/transcript"
)

func newTestRouter(t *testing.T) (*EventRouter, *sessionmanager.Manager, *transcript.Reader, string) {
	t.Helper()
	repo := t.TempDir()
	reader := transcript.New(filepath.Join(t.TempDir(), "transcripts"))
	mgr := sessionmanager.New(nil, "echo", time.Second, reader)
	r := New(nil, mgr, reader)
	return r, mgr, reader, repo
}

func TestEventRouter_DropsEventWithEmptySessionID(t *testing.T) {
	r, mgr, _, repo := newTestRouter(t)
	s, err := mgr.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)

	r.HandleEvent(hookevent.HookEvent{HookEventName: hookevent.Stop, Cwd: repo})
	assert.Equal(t, session.ActivityStarting, s.ActivityState())
}

func TestEventRouter_DispatchesToBoundSession(t *testing.T) {
	r, mgr, _, repo := newTestRouter(t)
	s, err := mgr.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)
	require.NoError(t, mgr.RegisterAgentSession("agent-1", s.ID))

	r.HandleEvent(hookevent.HookEvent{HookEventName: hookevent.Stop, SessionID: "agent-1", Cwd: repo})
	assert.Equal(t, session.ActivityWaitingForInput, s.ActivityState())
}

func TestEventRouter_OrphanHijackPrevented(t *testing.T) {
	r, mgr, _, repo := newTestRouter(t)
	s, err := mgr.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)

	// No transcript file exists for this agent session id, so
	// verify_session_file returns FileMissing and the router must refuse
	// to auto-register (spec.md §8 scenario 3).
	r.HandleEvent(hookevent.HookEvent{HookEventName: hookevent.Stop, SessionID: "11111111", Cwd: repo})

	assert.Empty(t, s.AgentSessionID())
	assert.Equal(t, session.ActivityStarting, s.ActivityState())
}

func TestEventRouter_AutoRegistersVerifiedOrphan(t *testing.T) {
	r, mgr, reader, repo := newTestRouter(t)
	s, err := mgr.CreatePipeModeSession(repo, repo)
	require.NoError(t, err)

	projectDir := reader.ProjectDir(repo)
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	longPrompt := strings.Repeat("please refactor the whole module carefully ", 2)
	require.NoError(t, os.WriteFile(
		filepath.Join(projectDir, "22222222.jsonl"),
		[]byte(`{"type":"user","message":{"role":"user","content":"`+longPrompt+`"}}`+"\n"),
		0o644,
	))

	r.HandleEvent(hookevent.HookEvent{HookEventName: hookevent.Stop, SessionID: "22222222", Cwd: repo})

	assert.Equal(t, "22222222", s.AgentSessionID())
	assert.Equal(t, session.ActivityWaitingForInput, s.ActivityState())
}

func TestEventRouter_AutoRegisterVerifiesAgainstCandidateRepoPathNotEventCwd(t *testing.T) {
	r, mgr, reader, repo := newTestRouter(t)
	cwd := t.TempDir()
	s, err := mgr.CreatePipeModeSession(repo, cwd)
	require.NoError(t, err)

	// The transcript lives under the candidate's RepoPath, not its Cwd
	// (which is what the event carries); verification must look in the
	// former or this never matches.
	projectDir := reader.ProjectDir(repo)
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	longPrompt := strings.Repeat("please refactor the whole module carefully ", 2)
	require.NoError(t, os.WriteFile(
		filepath.Join(projectDir, "33333333.jsonl"),
		[]byte(`{"type":"user","message":{"role":"user","content":"`+longPrompt+`"}}`+"\n"),
		0o644,
	))

	r.HandleEvent(hookevent.HookEvent{HookEventName: hookevent.Stop, SessionID: "33333333", Cwd: cwd})

	assert.Equal(t, "33333333", s.AgentSessionID())
	assert.Equal(t, session.ActivityWaitingForInput, s.ActivityState())
}

func TestEventRouter_OnRawMessagePassthrough(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	received := make(chan []byte, 1)
	r.OnRawMessage(func(b []byte) { received <- b })

	r.HandleRaw([]byte(`{"hook_event_name":"Stop"}`))

	select {
	case b := <-received:
		assert.Contains(t, string(b), "Stop")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for raw message passthrough")
	}
}
