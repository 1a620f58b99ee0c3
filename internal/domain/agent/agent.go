// Package agent defines the Agent domain entity and its message/task records.
package agent

import (
	"errors"
	"time"

	"github.com/hiveworks/hive/internal/domain/permission"
)

// Status represents the current lifecycle state of an agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation entry. Messages are immutable once
// appended; insertion order is significant.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskPaused    TaskStatus = "paused"
)

// Terminal reports whether s is a terminal task status.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled || s == TaskPaused
}

// Task is one long-form instruction executed against an agent.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"` // 0-100
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Agent is a persistent conversational/task context bound to one project
// worktree and one backend model.
type Agent struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	ProjectPath    string            `json:"project_path"`
	WorktreeName   string            `json:"worktree_name"`
	WorktreePath   string            `json:"worktree_path"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	Status         Status            `json:"status"`
	PermissionMode permission.Mode   `json:"permission_mode"`
	Messages       []Message         `json:"messages"`
	Tasks          []Task            `json:"tasks"`
	SkillIDs       []string          `json:"skill_ids,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	LastActiveAt   time.Time         `json:"last_active_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Touch records activity, deferring reaping.
func (a *Agent) Touch(now time.Time) {
	a.LastActiveAt = now
	a.UpdatedAt = now
}

// TaskByID returns a pointer into a.Tasks, or nil when absent.
func (a *Agent) TaskByID(id string) *Task {
	for i := range a.Tasks {
		if a.Tasks[i].ID == id {
			return &a.Tasks[i]
		}
	}
	return nil
}

// HasSkill reports whether the skill id was already applied.
func (a *Agent) HasSkill(id string) bool {
	for _, s := range a.SkillIDs {
		if s == id {
			return true
		}
	}
	return false
}

// CreateRequest is the input for creating a new agent.
type CreateRequest struct {
	Name           string            `json:"name"`
	ProjectPath    string            `json:"project_path"`
	Provider       string            `json:"provider,omitempty"`
	Model          string            `json:"model,omitempty"`
	PermissionMode permission.Mode   `json:"permission_mode,omitempty"`
	SystemPrompt   string            `json:"system_prompt,omitempty"`
	SkillIDs       []string          `json:"skill_ids,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.ProjectPath == "" {
		return errors.New("project_path is required")
	}
	if r.PermissionMode != "" && !permission.ValidMode(r.PermissionMode) {
		return errors.New("invalid permission mode: " + string(r.PermissionMode))
	}
	return nil
}
