package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hiveworks/hive/internal/domain"
	"github.com/hiveworks/hive/internal/domain/change"
	"github.com/hiveworks/hive/internal/domain/diff"
	"github.com/hiveworks/hive/internal/domain/event"
)

// applyDiffs extracts unified-diff blocks from task output and records one
// pending CodeChange per block. Malformed blocks were already dropped by the
// extractor; a persistence failure aborts the whole pipeline.
func (e *Engine) applyDiffs(agentID, taskID, output string) ([]string, error) {
	blocks := diff.Extract(output)
	if len(blocks) == 0 {
		return nil, nil
	}

	lk := e.lockFor(agentID)
	lk.Lock()
	a, err := e.lookup(agentID)
	if err != nil {
		lk.Unlock()
		return nil, err
	}
	root := a.WorktreePath
	lk.Unlock()

	ctx := e.baseCtx
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		original := ""
		if root != "" {
			if data, err := os.ReadFile(filepath.Join(root, b.Path)); err == nil {
				original = string(data)
			}
		}

		c := &change.CodeChange{
			ID:              newID(),
			AgentID:         agentID,
			TaskID:          taskID,
			FilePath:        b.Path,
			OriginalContent: original,
			NewContent:      diff.Apply(original, b),
			DiffText:        b.Text,
			Status:          change.StatusPending,
			CreatedAt:       e.now().UTC(),
		}
		if err := e.store.SaveChange(ctx, c); err != nil {
			return ids, fmt.Errorf("save change: %w", err)
		}
		ids = append(ids, c.ID)

		e.notify(ctx, event.TypeChangesCreated, agentID, taskID, event.ChangePayload{
			AgentID:  agentID,
			TaskID:   taskID,
			ChangeID: c.ID,
			FilePath: b.Path,
		})
	}

	slog.Info("code changes extracted", "agent_id", agentID, "task_id", taskID, "changes", len(ids))
	return ids, nil
}

// ListChanges returns all code changes recorded for an agent.
func (e *Engine) ListChanges(ctx context.Context, agentID string) ([]change.CodeChange, error) {
	return e.store.ListChangesByAgent(ctx, agentID)
}

// ApproveChange marks a pending change approved.
func (e *Engine) ApproveChange(ctx context.Context, changeID string) error {
	return e.reviewChange(ctx, changeID, change.StatusApproved)
}

// RejectChange marks a pending change rejected.
func (e *Engine) RejectChange(ctx context.Context, changeID string) error {
	return e.reviewChange(ctx, changeID, change.StatusRejected)
}

func (e *Engine) reviewChange(ctx context.Context, changeID string, status change.Status) error {
	c, err := e.store.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	if c.Status != change.StatusPending {
		return fmt.Errorf("change %s is %s, not pending", changeID, c.Status)
	}
	if err := e.store.UpdateChangeStatus(ctx, changeID, status); err != nil {
		return fmt.Errorf("update change status: %w", err)
	}
	return nil
}

// ApplyChange writes an approved change's new content into the agent's
// worktree and marks it applied.
func (e *Engine) ApplyChange(ctx context.Context, changeID string) error {
	c, err := e.store.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	if c.Status != change.StatusApproved {
		return fmt.Errorf("change %s is %s, not approved", changeID, c.Status)
	}

	lk := e.lockFor(c.AgentID)
	lk.Lock()
	a, err := e.lookup(c.AgentID)
	if err != nil {
		lk.Unlock()
		return err
	}
	root := a.WorktreePath
	lk.Unlock()
	if root == "" {
		return fmt.Errorf("agent %s worktree: %w", c.AgentID, domain.ErrNotFound)
	}

	target := filepath.Join(root, c.FilePath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(target, []byte(c.NewContent), 0o644); err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	if e.cache != nil {
		e.cache.Delete(ctx, target)
	}

	if err := e.store.UpdateChangeStatus(ctx, changeID, change.StatusApplied); err != nil {
		return fmt.Errorf("update change status: %w", err)
	}
	slog.Info("code change applied", "change_id", changeID, "agent_id", c.AgentID, "file", c.FilePath)
	return nil
}
