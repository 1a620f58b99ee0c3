// Package worktree defines the port for isolated per-agent checkouts.
package worktree

import "context"

// Changes lists paths with uncommitted modifications in a worktree.
type Changes struct {
	Staged   []string
	Unstaged []string
}

// Service provisions and tears down agent-private worktrees.
type Service interface {
	// Create provisions a fresh worktree for the project and returns its path.
	Create(ctx context.Context, projectPath, name string) (path string, err error)

	// Remove tears down a worktree previously created for the project.
	Remove(ctx context.Context, projectPath, name string) error

	// GetChanges reports recently modified paths in the worktree.
	GetChanges(ctx context.Context, worktreePath string) (*Changes, error)
}
