// Package event defines the engine's notification event types and the
// persisted audit record shape.
package event

import (
	"encoding/json"
	"time"
)

// Type names an engine event. Observers subscribe by type; the engine has no
// knowledge of subscribers.
type Type string

const (
	TypeAgentCreated      Type = "agent:created"
	TypeAgentMessage      Type = "agent:message"
	TypeTaskStarted       Type = "agent:taskStarted"
	TypeTaskCompleted     Type = "agent:taskCompleted"
	TypeTaskFailed        Type = "agent:taskFailed"
	TypeProgress          Type = "agent:progress"
	TypeAgentPaused       Type = "agent:paused"
	TypeAgentResumed      Type = "agent:resumed"
	TypeAgentStopped      Type = "agent:stopped"
	TypeAgentDeleted      Type = "agent:deleted"
	TypeChangesCreated    Type = "changes:created"
	TypeSkillApplied      Type = "skill:applied"
	TypePermissionMode    Type = "agent:permissionModeChanged"
	TypePermissionRequest Type = "permission:requested"
)

// AgentPayload accompanies agent lifecycle events.
type AgentPayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status"`
}

// MessagePayload accompanies agent:message events.
type MessagePayload struct {
	AgentID   string `json:"agent_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
}

// TaskPayload accompanies task lifecycle and progress events.
type TaskPayload struct {
	AgentID  string `json:"agent_id"`
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// ChangePayload accompanies changes:created events.
type ChangePayload struct {
	AgentID  string `json:"agent_id"`
	TaskID   string `json:"task_id"`
	ChangeID string `json:"change_id"`
	FilePath string `json:"file_path"`
}

// SkillPayload accompanies skill:applied events.
type SkillPayload struct {
	AgentID string `json:"agent_id"`
	SkillID string `json:"skill_id"`
}

// PermissionPayload accompanies permission events.
type PermissionPayload struct {
	AgentID   string `json:"agent_id"`
	RequestID string `json:"request_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Action    string `json:"action,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Record is one audited engine event.
type Record struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id"`
	TaskID    string          `json:"task_id,omitempty"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
