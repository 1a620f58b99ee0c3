// Package permission defines the permission-gating domain model.
// A per-agent mode decides whether side-effecting actions run automatically,
// are queued for human approval, or are blocked outright.
package permission

import "time"

// Mode is the per-agent permission policy.
type Mode string

const (
	// ModeAsk queues every action for approval.
	ModeAsk Mode = "ask"
	// ModeAutoAcceptEdits allows edit actions immediately; commands and tools are queued.
	ModeAutoAcceptEdits Mode = "acceptEdits"
	// ModePlan blocks every action without queueing a request (analysis only).
	ModePlan Mode = "plan"
	// ModeBypass allows every action. Settable only when the process-wide
	// bypass flag is enabled.
	ModeBypass Mode = "bypass"
)

// ValidMode reports whether m is a known permission mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeAsk, ModeAutoAcceptEdits, ModePlan, ModeBypass:
		return true
	}
	return false
}

// ActionType classifies a gated action.
type ActionType string

const (
	ActionEdit    ActionType = "edit"
	ActionCommand ActionType = "command"
	ActionTool    ActionType = "tool"
)

// RequestStatus is the lifecycle state of a permission request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Request is a queued approval for a single action.
type Request struct {
	ID         string            `json:"id"`
	AgentID    string            `json:"agent_id"`
	Action     ActionType        `json:"action"`
	Name       string            `json:"name"`
	Details    map[string]string `json:"details,omitempty"`
	Status     RequestStatus     `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// Result is the outcome of a permission check.
type Result struct {
	Allowed   bool   `json:"allowed"`
	RequestID string `json:"request_id,omitempty"`
}
