// Package store implements the durable persistence layer (spec.md §4.7):
// SessionStateStore (a single JSON file of live sessions) and
// SessionHistoryStore (one JSON file per workspace history entry).
package store

import "time"

// PersistedSession is the on-disk shape of a live Session (spec.md §3,
// §4.7). EmbeddedProcessID/EmbeddedConsoleHandle are only meaningful for
// Windows embedded-mode sessions; they are left zero on other backends,
// and are written by sessionmanager.Manager.SaveSessionState (not
// SaveCurrentState) via a caller-supplied HwndProvider, since no OS
// handle accessor lives on the Backend interface itself.
type PersistedSession struct {
	SchemaVersion int `json:"schemaVersion"`

	SessionID   string   `json:"sessionId"`
	RepoPath    string   `json:"repoPath"`
	Cwd         string   `json:"cwd"`
	LaunchArgs  []string `json:"launchArgs,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Color       string   `json:"color,omitempty"`
	Draft       string   `json:"draft,omitempty"`

	EmbeddedProcessID     int     `json:"embeddedProcessId,omitempty"`
	EmbeddedConsoleHandle uintptr `json:"embeddedConsoleHandle,omitempty"`

	AgentSessionID      string    `json:"agentSessionId,omitempty"`
	ActivityState       string    `json:"activityState"`
	CreatedAt           time.Time `json:"createdAt"`
	SortOrder           int       `json:"sortOrder"`
	ExpectedFirstPrompt string    `json:"expectedFirstPrompt,omitempty"`

	HistoryEntryID string   `json:"historyEntryId,omitempty"`
	RawStartupText string   `json:"rawStartupText,omitempty"`
	QueuedPrompts  []string `json:"queuedPrompts,omitempty"`
}

// CurrentSchemaVersion tags freshly-saved PersistedSession entries so a
// future SessionStateStore revision can tell which migration (if any) to
// apply on load.
const CurrentSchemaVersion = 1

// SessionHistoryEntry is one workspace's durable history record (spec.md
// §3, §4.7), keyed by its own ID independent of any live Session's ID.
type SessionHistoryEntry struct {
	ID                  string    `json:"id"`
	RepoPath            string    `json:"repoPath"`
	DisplayName         string    `json:"displayName,omitempty"`
	Color               string    `json:"color,omitempty"`
	LastAgentSessionID  string    `json:"lastAgentSessionId,omitempty"`
	LastUsedAt          time.Time `json:"lastUsedAt"`
	FirstPromptSnippet  string    `json:"firstPromptSnippet,omitempty"`
}
