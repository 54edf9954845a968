// Package router implements EventRouter (spec.md §4.10): routes each
// incoming HookEvent from IpcServer to the Session it identifies,
// guarding against a stale agent process hijacking an unrelated Session.
package router

import (
	"sync"

	"go.uber.org/zap"

	"github.com/thefrederiksen/cc-director-sub002/internal/hookevent"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
	"github.com/thefrederiksen/cc-director-sub002/internal/sessionmanager"
	"github.com/thefrederiksen/cc-director-sub002/internal/transcript"
)

// EventRouter dispatches HookEvents to sessionmanager.Manager-owned
// sessions (spec.md §4.10).
type EventRouter struct {
	log     *logging.Logger
	manager *sessionmanager.Manager
	reader  *transcript.Reader

	mu           sync.Mutex
	onRawMessage func([]byte)
}

// New constructs an EventRouter over manager, using reader for the
// orphan-guard file-verification check before auto-registering an
// unmatched session.
func New(log *logging.Logger, manager *sessionmanager.Manager, reader *transcript.Reader) *EventRouter {
	if log == nil {
		log = logging.Default()
	}
	return &EventRouter{log: log, manager: manager, reader: reader}
}

// OnRawMessage registers a callback fired with every raw event (spec.md
// §4.10 step 1), independent of whether it is ultimately routed.
func (r *EventRouter) OnRawMessage(fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRawMessage = fn
}

// HandleRaw fires OnRawMessage for UI observation; wired as IpcServer's
// own OnRawMessage callback.
func (r *EventRouter) HandleRaw(line []byte) {
	r.mu.Lock()
	fn := r.onRawMessage
	r.mu.Unlock()
	if fn != nil {
		fn(line)
	}
}

// HandleEvent implements spec.md §4.10's routing algorithm: drop events
// without an AgentSessionId; look up the bound session, or fall back to
// find_unmatched_session; guard auto-registration on file verification
// of the candidate's own RepoPath (not the event's Cwd, since
// FindUnmatchedSession can match a session on its Cwd even when that
// differs from RepoPath) returning Verified, so a stale agent process
// carrying an old AgentSessionId cannot capture the wrong Session;
// dispatch to the resolved session's HandleHookEvent.
func (r *EventRouter) HandleEvent(event hookevent.HookEvent) {
	if event.SessionID == "" {
		r.log.Debug("router: dropping hook event with empty session_id")
		return
	}

	if sess, ok := r.manager.GetByAgentSessionID(event.SessionID); ok {
		sess.HandleHookEvent(event)
		return
	}

	candidate, ok := r.manager.FindUnmatchedSession(event.Cwd)
	if !ok {
		r.log.Debug("router: no unmatched session for orphaned hook event",
			zap.String("agent_session_id", event.SessionID), zap.String("cwd", event.Cwd))
		return
	}

	result, err := r.reader.VerifySessionFile(event.SessionID, candidate.RepoPath, "")
	if err != nil {
		r.log.Warn("router: orphan-guard verification failed", zap.Error(err))
		return
	}
	if result.Status != transcript.Verified {
		r.log.Warn("router: refusing to auto-register unverified agent session",
			zap.String("agent_session_id", event.SessionID),
			zap.String("status", result.Status.String()))
		return
	}

	if err := r.manager.RegisterAgentSession(event.SessionID, candidate.ID); err != nil {
		r.log.Warn("router: auto-register failed", zap.Error(err))
		return
	}
	candidate.HandleHookEvent(event)
}
