package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/event"
	"github.com/hiveworks/hive/internal/port/provider"
)

// taskHandle tracks one in-flight task execution. mark records the terminal
// status a cancelling operation (stop, pause, delete) has already assigned,
// so the execution goroutine does not overwrite it on unwind.
type taskHandle struct {
	agentID string
	cancel  context.CancelFunc

	mu   sync.Mutex
	mark agent.TaskStatus
}

func (h *taskHandle) markAs(s agent.TaskStatus) {
	h.mu.Lock()
	h.mark = s
	h.mu.Unlock()
}

func (h *taskHandle) marked() agent.TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mark
}

// cancelTasks marks every non-terminal task of a with status and triggers
// the matching cancellation scopes. Callers must hold the agent's lock.
func (e *Engine) cancelTasks(a *agent.Agent, status agent.TaskStatus) {
	now := e.now().UTC()
	for i := range a.Tasks {
		t := &a.Tasks[i]
		if t.Status.Terminal() {
			continue
		}
		t.Status = status
		done := now
		t.CompletedAt = &done
	}

	e.tasks.Range(func(_, value any) bool {
		h := value.(*taskHandle)
		if h.agentID == a.ID {
			h.markAs(status)
			h.cancel()
		}
		return true
	})
}

// ExecuteTask creates a task record and launches execution in the
// background. The returned task is a snapshot taken at creation time; the
// caller observes progress through events or by re-fetching the agent.
func (e *Engine) ExecuteTask(ctx context.Context, agentID, description string, timeout time.Duration) (*agent.Task, error) {
	if timeout <= 0 {
		timeout = e.cfg.DefaultTaskTimeout
	}

	lk := e.lockFor(agentID)
	lk.Lock()

	a, err := e.lookup(agentID)
	if err != nil {
		lk.Unlock()
		return nil, err
	}

	now := e.now().UTC()
	task := agent.Task{
		ID:          newID(),
		Description: description,
		Status:      agent.TaskRunning,
		StartedAt:   now,
	}
	a.Tasks = append(a.Tasks, task)
	a.Status = agent.StatusRunning
	a.Touch(now)

	if err := e.store.SaveAgent(ctx, a); err != nil {
		a.Tasks = a.Tasks[:len(a.Tasks)-1]
		a.Status = agent.StatusIdle
		lk.Unlock()
		return nil, fmt.Errorf("save agent: %w", err)
	}
	// Execution outlives the caller's request context; it is bound to the
	// engine lifetime plus the task timeout. The handle is registered before
	// the agent lock is released so a concurrent stop or delete always
	// reaches the cancellation scope.
	taskCtx, cancel := context.WithTimeout(e.baseCtx, timeout)
	handle := &taskHandle{agentID: agentID, cancel: cancel}
	e.tasks.Store(task.ID, handle)
	lk.Unlock()

	e.notify(ctx, event.TypeTaskStarted, agentID, task.ID, event.TaskPayload{
		AgentID: agentID,
		TaskID:  task.ID,
		Status:  string(agent.TaskRunning),
	})

	e.wg.Add(1)
	go e.runTask(taskCtx, handle, agentID, task.ID, description)

	cp := task
	return &cp, nil
}

// runTask performs the task body: frame the instruction, build auto-context,
// exchange with the backend, extract code changes, and record the outcome.
func (e *Engine) runTask(ctx context.Context, handle *taskHandle, agentID, taskID, description string) {
	defer e.wg.Done()
	defer func() {
		handle.cancel()
		e.tasks.Delete(taskID)
	}()

	reply, err := e.exchangeForTask(ctx, agentID, taskID, description)
	if err != nil {
		e.finishTask(handle, agentID, taskID, nil, err)
		return
	}

	changeIDs, err := e.applyDiffs(agentID, taskID, reply.Content)
	if err != nil {
		e.finishTask(handle, agentID, taskID, nil, err)
		return
	}

	e.finishTask(handle, agentID, taskID, &taskOutcome{result: reply.Content, changeIDs: changeIDs}, nil)
}

// exchangeForTask appends the task framing message, attaches ephemeral
// auto-context, and requests the backend response with retry and progress
// reporting.
func (e *Engine) exchangeForTask(ctx context.Context, agentID, taskID, description string) (*provider.Reply, error) {
	lk := e.lockFor(agentID)
	lk.Lock()

	a, err := e.lookup(agentID)
	if err != nil {
		lk.Unlock()
		return nil, err
	}

	now := e.now().UTC()
	a.Messages = append(a.Messages, agent.Message{
		ID:        newID(),
		Role:      agent.RoleUser,
		Content:   "Task: " + description,
		CreatedAt: now,
	})
	a.Touch(now)
	if err := e.store.SaveAgent(ctx, a); err != nil {
		lk.Unlock()
		return nil, fmt.Errorf("save agent: %w", err)
	}

	contextMsg := e.buildAutoContext(ctx, a, description)
	msgs := outgoing(a, contextMsg)
	providerName := a.Provider
	model := a.Model
	lk.Unlock()

	backend, err := e.providers.New(providerName, nil)
	if err != nil {
		return nil, err
	}

	opts := &provider.Options{
		Progress: func(pct int) { e.setTaskProgress(agentID, taskID, pct) },
	}

	var reply *provider.Reply
	err = withRetry(ctx, e.cfg.MaxAttempts, e.cfg.RetryBaseDelay, func(ctx context.Context) error {
		r, err := backend.SendMessage(ctx, model, msgs, opts)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

type taskOutcome struct {
	result    string
	changeIDs []string
}

// finishTask records the terminal state for a task. A cancellation mark set
// by stop/pause/delete wins over any error the unwinding call produced.
func (e *Engine) finishTask(handle *taskHandle, agentID, taskID string, outcome *taskOutcome, execErr error) {
	lk := e.lockFor(agentID)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(agentID)
	if err != nil {
		// Agent deleted while the task was unwinding.
		return
	}
	t := a.TaskByID(taskID)
	if t == nil {
		return
	}

	now := e.now().UTC()
	bg := e.baseCtx

	if marked := handle.marked(); marked != "" {
		// Terminal status already assigned by the cancelling operation.
		if !t.Status.Terminal() {
			t.Status = marked
			t.CompletedAt = &now
		}
		_ = e.store.SaveAgent(bg, a)
		e.notify(bg, event.TypeTaskCompleted, agentID, taskID, event.TaskPayload{
			AgentID:  agentID,
			TaskID:   taskID,
			Status:   string(t.Status),
			Progress: t.Progress,
		})
		if e.metrics != nil {
			e.metrics.TaskFinished(bg, t.Status)
		}
		slog.Info("task finished", "agent_id", agentID, "task_id", taskID, "status", t.Status)
		return
	}
	if t.Status.Terminal() {
		_ = e.store.SaveAgent(bg, a)
		return
	}

	cancelled := execErr != nil && (ctxErr(execErr))
	switch {
	case cancelled:
		t.Status = agent.TaskCancelled
		t.CompletedAt = &now
		a.Status = agent.StatusIdle
	case execErr != nil:
		t.Status = agent.TaskFailed
		t.Error = execErr.Error()
		t.CompletedAt = &now
		a.Status = agent.StatusError
	default:
		t.Status = agent.TaskCompleted
		t.Progress = 100
		t.CompletedAt = &now
		a.Status = agent.StatusIdle

		a.Messages = append(a.Messages, agent.Message{
			ID:      newID(),
			Role:    agent.RoleAssistant,
			Content: outcome.result,
			Metadata: map[string]string{
				"task_id":    taskID,
				"change_ids": strings.Join(outcome.changeIDs, ","),
			},
			CreatedAt: now,
		})
		t.Result = outcome.result
	}
	a.Touch(now)

	if err := e.store.SaveAgent(bg, a); err != nil {
		slog.Error("save agent after task", "agent_id", agentID, "task_id", taskID, "error", err)
	}

	payload := event.TaskPayload{
		AgentID:  agentID,
		TaskID:   taskID,
		Status:   string(t.Status),
		Progress: t.Progress,
		Error:    t.Error,
	}
	if t.Status == agent.TaskFailed {
		e.notify(bg, event.TypeTaskFailed, agentID, taskID, payload)
	} else {
		e.notify(bg, event.TypeTaskCompleted, agentID, taskID, payload)
	}
	if e.metrics != nil {
		e.metrics.TaskFinished(bg, t.Status)
	}
	slog.Info("task finished", "agent_id", agentID, "task_id", taskID, "status", t.Status)
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// setTaskProgress updates a task's progress field and notifies observers.
// Progress callbacks may fire many times; each update is best-effort.
func (e *Engine) setTaskProgress(agentID, taskID string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	lk := e.lockFor(agentID)
	lk.Lock()
	a, err := e.lookup(agentID)
	if err == nil {
		if t := a.TaskByID(taskID); t != nil && !t.Status.Terminal() {
			t.Progress = pct
		}
	}
	lk.Unlock()
	if err != nil {
		return
	}

	e.notify(e.baseCtx, event.TypeProgress, agentID, taskID, event.TaskPayload{
		AgentID:  agentID,
		TaskID:   taskID,
		Status:   string(agent.TaskRunning),
		Progress: pct,
	})
}
