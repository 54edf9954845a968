// Package hookevent defines the HookEvent wire shape (spec.md §6.3): the
// payload IpcServer deserializes from one JSON line per connection and
// EventRouter dispatches to Session. Kept as its own small package (the
// teacher's own convention in pkg/claudecode/types.go of isolating a wire
// shape from the components that produce/consume it) so internal/ipc,
// internal/router, and internal/session can all depend on it without a
// cycle.
package hookevent

import "time"

// Name enumerates the hook_event_name values the agent emits (spec.md
// §6.3 table).
type Name string

const (
	SessionStart       Name = "SessionStart"
	SessionEnd         Name = "SessionEnd"
	UserPromptSubmit   Name = "UserPromptSubmit"
	PreToolUse         Name = "PreToolUse"
	PostToolUse        Name = "PostToolUse"
	PostToolUseFailure Name = "PostToolUseFailure"
	SubagentStart      Name = "SubagentStart"
	SubagentStop       Name = "SubagentStop"
	TaskCompleted      Name = "TaskCompleted"
	PermissionRequest  Name = "PermissionRequest"
	Notification       Name = "Notification"
	Stop               Name = "Stop"
	TeammateIdle       Name = "TeammateIdle"
	PreCompact         Name = "PreCompact"
)

// NotificationPermissionPrompt is the notification_type value that
// escalates a generic Notification into WaitingForPermission (spec.md
// §4.6).
const NotificationPermissionPrompt = "permission_prompt"

// HookEvent is the payload received over IPC (spec.md §6.3).
type HookEvent struct {
	HookEventName    Name      `json:"hook_event_name"`
	SessionID        string    `json:"session_id,omitempty"`
	Cwd              string    `json:"cwd,omitempty"`
	NotificationType string    `json:"notification_type,omitempty"`
	Timestamp        string    `json:"timestamp,omitempty"`
	ReceivedAt       time.Time `json:"-"`
}

// IsPermissionPromptNotification reports whether this is a generic
// Notification carrying the permission_prompt subtype (spec.md §4.6's
// WaitingForPermission transition and sticky-green escape clause).
func (e HookEvent) IsPermissionPromptNotification() bool {
	return e.HookEventName == Notification && e.NotificationType == NotificationPermissionPrompt
}
