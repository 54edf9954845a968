// Package main is the entry point for ccdirector - the background process
// that supervises every agent session for the CC Director UI: spawning
// PTY-backed sessions, routing hook-event IPC to them, and persisting
// session state across restarts.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thefrederiksen/cc-director-sub002/internal/config"
	"github.com/thefrederiksen/cc-director-sub002/internal/ipc"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
	"github.com/thefrederiksen/cc-director-sub002/internal/router"
	"github.com/thefrederiksen/cc-director-sub002/internal/sessionmanager"
	"github.com/thefrederiksen/cc-director-sub002/internal/store"
	"github.com/thefrederiksen/cc-director-sub002/internal/transcript"
)

// agentProcessImageName is the image name ScanForOrphans looks for on
// startup. It matches AgentExecutable by convention, not by config lookup,
// since the image name a process shows under is its basename regardless of
// the configured launch path.
const agentProcessImageName = "claude"

func main() {
	cfg := config.Load()

	log, err := logging.New(logging.Config{
		Level:      cfg.Logging().Level,
		Format:     cfg.Logging().Format,
		OutputPath: cfg.Logging().OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logging.SetDefault(log)

	log.Info("starting ccdirector",
		zap.String("agent_executable", cfg.AgentExecutable()),
		zap.String("app_data_dir", cfg.AppDataDir()),
		zap.String("storage_dir", cfg.StorageDir()),
	)

	if err := os.MkdirAll(cfg.AppDataDir(), 0o700); err != nil {
		log.Error("failed to create app data dir", zap.Error(err))
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.StorageDir(), 0o700); err != nil {
		log.Error("failed to create storage dir", zap.Error(err))
		os.Exit(1)
	}

	reader := transcript.New(defaultTranscriptsRoot())
	gracefulTimeout := time.Duration(cfg.GracefulShutdownTimeoutMs()) * time.Millisecond
	manager := sessionmanager.New(log, cfg.AgentExecutable(), gracefulTimeout, reader)

	stateStore := store.NewSessionStateStore(filepath.Join(cfg.AppDataDir(), "sessions.json"))
	historyStore, err := store.NewSessionHistoryStore(cfg.StorageDir(), log)
	if err != nil {
		log.Error("failed to open session history store", zap.Error(err))
		os.Exit(1)
	}
	manager.OnAgentSessionRegistered(func(sessionID, agentSessionID string) {
		sess, ok := manager.Get(sessionID)
		if !ok {
			return
		}
		entry := store.SessionHistoryEntry{
			ID:                 sessionID,
			RepoPath:           sess.RepoPath,
			DisplayName:        sess.DisplayName,
			Color:              sess.Color,
			LastAgentSessionID: agentSessionID,
			LastUsedAt:         time.Now(),
		}
		if err := historyStore.Save(entry); err != nil {
			log.Warn("failed to save session history entry", zap.String("session_id", sessionID), zap.Error(err))
		}
	})

	restorePlan, err := manager.LoadPersistedSessions(stateStore)
	if err != nil {
		log.Error("failed to load persisted session state", zap.Error(err))
	} else if restorePlan.FileExistedButFailed {
		log.Warn("session state file existed but failed to parse, starting with no restored sessions",
			zap.String("diagnostic", restorePlan.Diagnostic))
	} else if len(restorePlan.Entries) > 0 {
		log.Info("found persisted sessions awaiting UI-driven restore",
			zap.Int("count", len(restorePlan.Entries)))
	}

	manager.ScanForOrphans(agentProcessImageName)

	ipcServer := ipc.New(log)
	eventRouter := router.New(log, manager, reader)
	ipcServer.OnMessageReceived(eventRouter.HandleEvent)
	ipcServer.OnRawMessage(eventRouter.HandleRaw)

	if err := ipcServer.Start(); err != nil {
		log.Error("failed to start ipc server", zap.Error(err))
		os.Exit(1)
	}
	log.Info("ipc server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down ccdirector")

	if err := manager.SaveCurrentState(stateStore); err != nil {
		log.Error("failed to save session state on shutdown", zap.Error(err))
	}
	manager.Dispose()

	if err := ipcServer.Shutdown(); err != nil {
		log.Error("ipc server shutdown error", zap.Error(err))
	}

	log.Info("ccdirector stopped")
}

// defaultTranscriptsRoot resolves the agent's own per-project transcript
// directory (spec.md §4.5, §6.2) — distinct from CC Director's own
// AppDataDir/StorageDir, since it is the agent CLI's convention, not
// CC Director's, that owns this path.
func defaultTranscriptsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".claude", "projects")
}
