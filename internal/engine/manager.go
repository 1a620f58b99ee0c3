package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hiveworks/hive/internal/domain"
	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/event"
	"github.com/hiveworks/hive/internal/domain/permission"
)

// Create provisions a fresh worktree, builds the agent record, and persists
// it. Project-level configuration from the project directory is merged into
// the request before provisioning.
func (e *Engine) Create(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	e.mergeProjectConfig(&req)

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	if req.PermissionMode == permission.ModeBypass && !e.bypassAllowed {
		return nil, fmt.Errorf("bypass mode: %w", domain.ErrPermissionDenied)
	}

	id := newID()
	worktreeName := e.cfg.WorktreePrefix + sanitizeName(req.Name) + "-" + id[:8]
	worktreePath, err := e.worktrees.Create(ctx, req.ProjectPath, worktreeName)
	if err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	now := e.now().UTC()
	mode := req.PermissionMode
	if mode == "" {
		mode = permission.ModeAsk
	}
	a := &agent.Agent{
		ID:             id,
		Name:           req.Name,
		ProjectPath:    req.ProjectPath,
		WorktreeName:   worktreeName,
		WorktreePath:   worktreePath,
		Provider:       req.Provider,
		Model:          req.Model,
		Status:         agent.StatusIdle,
		PermissionMode: mode,
		Metadata:       req.Metadata,
		LastActiveAt:   now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if a.Provider == "" {
		a.Provider = "litellm"
	}

	if req.SystemPrompt != "" {
		a.Messages = append(a.Messages, agent.Message{
			ID:        newID(),
			Role:      agent.RoleSystem,
			Content:   req.SystemPrompt,
			CreatedAt: now,
		})
	}
	for _, skillID := range req.SkillIDs {
		if err := e.appendSkill(ctx, a, skillID); err != nil {
			slog.Warn("apply skill on create", "agent_id", id, "skill_id", skillID, "error", err)
		}
	}

	if err := e.store.SaveAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("save agent: %w", err)
	}

	e.mu.Lock()
	e.agents[a.ID] = a
	e.mu.Unlock()

	e.notify(ctx, event.TypeAgentCreated, a.ID, "", event.AgentPayload{
		AgentID: a.ID,
		Name:    a.Name,
		Status:  string(a.Status),
	})
	slog.Info("agent created", "agent_id", a.ID, "name", a.Name, "worktree", worktreeName)
	return snapshot(a), nil
}

// Get returns a detached copy of one agent.
func (e *Engine) Get(ctx context.Context, id string) (*agent.Agent, error) {
	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return snapshot(a), nil
}

// List returns all tracked agents ordered by creation time.
func (e *Engine) List(ctx context.Context) []*agent.Agent {
	live := e.sortedAgents()
	out := make([]*agent.Agent, 0, len(live))
	for _, a := range live {
		lk := e.lockFor(a.ID)
		lk.Lock()
		out = append(out, snapshot(a))
		lk.Unlock()
	}
	return out
}

// Delete cancels the agent's in-flight tasks, tears down the worktree
// best-effort, and removes the agent from the index and the store.
func (e *Engine) Delete(ctx context.Context, id string) error {
	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(id)
	if err != nil {
		return err
	}

	e.cancelTasks(a, agent.TaskCancelled)

	// Worktree removal can race the reaper against a manual delete; a
	// failed removal is logged, never fatal.
	if err := e.worktrees.Remove(ctx, a.ProjectPath, a.WorktreeName); err != nil {
		slog.Warn("remove worktree", "agent_id", id, "worktree", a.WorktreeName, "error", err)
	}

	if err := e.store.DeleteAgent(ctx, id); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}

	e.mu.Lock()
	delete(e.agents, id)
	delete(e.locks, id)
	e.mu.Unlock()

	e.notify(ctx, event.TypeAgentDeleted, id, "", event.AgentPayload{AgentID: id, Name: a.Name, Status: "deleted"})
	slog.Info("agent deleted", "agent_id", id)
	return nil
}

// Pause cancels the agent's in-flight tasks, marking them Paused, and sets
// the agent status to Paused.
func (e *Engine) Pause(ctx context.Context, id string) error {
	return e.transition(ctx, id, agent.StatusPaused, agent.TaskPaused, event.TypeAgentPaused)
}

// Stop cancels the agent's in-flight tasks, marking them Cancelled, and
// returns the agent to Idle.
func (e *Engine) Stop(ctx context.Context, id string) error {
	return e.transition(ctx, id, agent.StatusIdle, agent.TaskCancelled, event.TypeAgentStopped)
}

// Resume restores a paused agent to Idle. Paused tasks are not restarted;
// re-executing work is the caller's responsibility.
func (e *Engine) Resume(ctx context.Context, id string) error {
	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(id)
	if err != nil {
		return err
	}

	a.Status = agent.StatusIdle
	a.Touch(e.now().UTC())
	if err := e.store.SaveAgent(ctx, a); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}

	e.notify(ctx, event.TypeAgentResumed, id, "", event.AgentPayload{AgentID: id, Status: string(a.Status)})
	return nil
}

func (e *Engine) transition(ctx context.Context, id string, status agent.Status, taskStatus agent.TaskStatus, evType event.Type) error {
	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(id)
	if err != nil {
		return err
	}

	e.cancelTasks(a, taskStatus)
	a.Status = status
	a.Touch(e.now().UTC())
	if err := e.store.SaveAgent(ctx, a); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}

	e.notify(ctx, evType, id, "", event.AgentPayload{AgentID: id, Status: string(a.Status)})
	return nil
}

// ApplySkills fetches each skill bundle and appends its instruction files as
// system messages. Skill ids union into the agent's skill set.
func (e *Engine) ApplySkills(ctx context.Context, id string, skillIDs []string) error {
	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(id)
	if err != nil {
		return err
	}

	for _, skillID := range skillIDs {
		if err := e.appendSkill(ctx, a, skillID); err != nil {
			return err
		}
		e.notify(ctx, event.TypeSkillApplied, id, "", event.SkillPayload{AgentID: id, SkillID: skillID})
	}

	a.Touch(e.now().UTC())
	if err := e.store.SaveAgent(ctx, a); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (e *Engine) appendSkill(ctx context.Context, a *agent.Agent, skillID string) error {
	if a.HasSkill(skillID) {
		return nil
	}
	sk, err := e.skills.GetSkill(ctx, skillID)
	if err != nil {
		return fmt.Errorf("get skill %s: %w", skillID, err)
	}
	now := e.now().UTC()
	for _, f := range sk.Files {
		a.Messages = append(a.Messages, agent.Message{
			ID:      newID(),
			Role:    agent.RoleSystem,
			Content: f.Content,
			Metadata: map[string]string{
				"skill_id":   sk.ID,
				"skill_name": sk.Name,
				"file_type":  string(f.Type),
			},
			CreatedAt: now,
		})
	}
	a.SkillIDs = append(a.SkillIDs, skillID)
	return nil
}

// SetPermissionMode switches an agent's permission mode. Bypass is rejected
// unless the process-wide flag allows it.
func (e *Engine) SetPermissionMode(ctx context.Context, id string, mode permission.Mode) error {
	if !permission.ValidMode(mode) {
		return fmt.Errorf("%w: invalid permission mode %q", domain.ErrValidation, mode)
	}
	if mode == permission.ModeBypass && !e.bypassAllowed {
		return fmt.Errorf("bypass mode: %w", domain.ErrPermissionDenied)
	}

	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(id)
	if err != nil {
		return err
	}

	a.PermissionMode = mode
	a.Touch(e.now().UTC())
	if err := e.store.SaveAgent(ctx, a); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}

	e.notify(ctx, event.TypePermissionMode, id, "", event.PermissionPayload{AgentID: id, Mode: string(mode)})
	return nil
}

// runReaper deletes agents idle past the configured age. Running agents are
// never reaped regardless of age.
func (e *Engine) runReaper() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.baseCtx.Done():
			return
		case <-ticker.C:
			e.reapOnce()
		}
	}
}

func (e *Engine) reapOnce() {
	cutoff := e.now().Add(-e.cfg.ReapAge)
	for _, a := range e.sortedAgents() {
		lk := e.lockFor(a.ID)
		lk.Lock()
		stale := a.Status != agent.StatusRunning && a.LastActiveAt.Before(cutoff)
		lk.Unlock()
		if !stale {
			continue
		}

		if err := e.Delete(e.baseCtx, a.ID); err != nil {
			slog.Warn("reap agent", "agent_id", a.ID, "error", err)
			continue
		}
		if e.metrics != nil {
			e.metrics.AgentReaped(e.baseCtx)
		}
		slog.Info("agent reaped", "agent_id", a.ID, "last_active_at", a.LastActiveAt)
	}
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "agent"
	}
	return out
}
