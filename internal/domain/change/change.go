// Package change defines the CodeChange domain entity: a proposed file
// modification extracted from model output, subject to review before it is
// written into the agent's worktree.
package change

import "time"

// Status is the review state of a code change.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusApplied  Status = "applied"
)

// CodeChange is one proposed modification to a single worktree-relative file.
type CodeChange struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	TaskID          string    `json:"task_id"`
	FilePath        string    `json:"file_path"` // worktree-relative
	OriginalContent string    `json:"original_content"`
	NewContent      string    `json:"new_content"`
	DiffText        string    `json:"diff_text"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
