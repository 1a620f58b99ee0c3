// Package gitcli implements the worktree port with the git CLI. Worktrees are
// created as siblings of the project directory so agents never collide on
// working-directory state.
package gitcli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hiveworks/hive/internal/git"
	"github.com/hiveworks/hive/internal/port/worktree"
)

// Service runs git worktree operations through a shared command pool.
type Service struct {
	pool *git.Pool
}

// NewService creates a git CLI worktree service.
func NewService(pool *git.Pool) *Service {
	return &Service{pool: pool}
}

// Create provisions a new worktree on a dedicated branch and returns its path.
func (s *Service) Create(ctx context.Context, projectPath, name string) (string, error) {
	path := filepath.Join(filepath.Dir(projectPath), name)

	if _, err := s.pool.Exec(ctx, projectPath, "worktree", "add", "-b", name, path); err != nil {
		return "", fmt.Errorf("worktree add %s: %w", name, err)
	}
	slog.Info("worktree created", "project", projectPath, "name", name, "path", path)
	return path, nil
}

// Remove tears down the worktree and its branch. The branch delete is
// best-effort; the worktree may hold unmerged work.
func (s *Service) Remove(ctx context.Context, projectPath, name string) error {
	path := filepath.Join(filepath.Dir(projectPath), name)

	if _, err := s.pool.Exec(ctx, projectPath, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("worktree remove %s: %w", name, err)
	}
	if _, err := s.pool.Exec(ctx, projectPath, "branch", "-D", name); err != nil {
		slog.Debug("delete worktree branch", "name", name, "error", err)
	}
	return nil
}

// GetChanges reports modified paths in the worktree, staged and unstaged.
func (s *Service) GetChanges(ctx context.Context, worktreePath string) (*worktree.Changes, error) {
	staged, err := s.pool.Exec(ctx, worktreePath, "diff", "--name-only", "--cached")
	if err != nil {
		return nil, fmt.Errorf("list staged changes: %w", err)
	}
	unstaged, err := s.pool.Exec(ctx, worktreePath, "diff", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("list unstaged changes: %w", err)
	}

	return &worktree.Changes{
		Staged:   splitPaths(staged),
		Unstaged: splitPaths(unstaged),
	}, nil
}

func splitPaths(out string) []string {
	if out == "" {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}
