package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hiveworks/hive/internal/config"
	"github.com/hiveworks/hive/internal/domain"
	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/event"
	"github.com/hiveworks/hive/internal/domain/permission"
	"github.com/hiveworks/hive/internal/domain/skill"
)

func TestCreateAgent(t *testing.T) {
	env := newTestEngine(t)

	a := env.createAgent(t, "My Agent")

	if a.Status != agent.StatusIdle {
		t.Fatalf("expected status idle, got %s", a.Status)
	}
	if a.Provider != "litellm" {
		t.Fatalf("expected default provider litellm, got %q", a.Provider)
	}
	if a.PermissionMode != permission.ModeAsk {
		t.Fatalf("expected default mode ask, got %s", a.PermissionMode)
	}
	if !strings.HasPrefix(a.WorktreeName, "hive-my-agent-") {
		t.Fatalf("unexpected worktree name %q", a.WorktreeName)
	}
	if a.WorktreePath == "" {
		t.Fatal("expected worktree path to be set")
	}

	if _, err := env.store.GetAgent(context.Background(), a.ID); err != nil {
		t.Fatalf("expected agent persisted, got %v", err)
	}
	if !env.hub.has(string(event.TypeAgentCreated)) {
		t.Fatal("expected agent:created event")
	}
}

func TestCreateAgentValidation(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.eng.Create(context.Background(), agent.CreateRequest{ProjectPath: env.projectDir})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateAgentBypassRejected(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.eng.Create(context.Background(), agent.CreateRequest{
		Name:           "a",
		ProjectPath:    env.projectDir,
		PermissionMode: permission.ModeBypass,
	})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestCreateAgentWithSystemPrompt(t *testing.T) {
	env := newTestEngine(t)

	a, err := env.eng.Create(context.Background(), agent.CreateRequest{
		Name:         "a",
		ProjectPath:  env.projectDir,
		SystemPrompt: "You are a reviewer.",
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if len(a.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(a.Messages))
	}
	if a.Messages[0].Role != agent.RoleSystem || a.Messages[0].Content != "You are a reviewer." {
		t.Fatalf("unexpected system message: %+v", a.Messages[0])
	}
}

func TestGetUnknownAgent(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.eng.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	env := newTestEngine(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	env.eng.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first := env.createAgent(t, "first")
	second := env.createAgent(t, "second")

	list := env.eng.List(context.Background())
	if len(list) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("expected creation order, got %s then %s", list[0].Name, list[1].Name)
	}
}

func TestDeleteAgent(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "doomed")

	if err := env.eng.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.eng.Get(context.Background(), a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := env.store.GetAgent(context.Background(), a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected agent removed from store, got %v", err)
	}

	env.worktrees.mu.Lock()
	removed := append([]string(nil), env.worktrees.removed...)
	env.worktrees.mu.Unlock()
	if len(removed) != 1 || removed[0] != a.WorktreeName {
		t.Fatalf("expected worktree %q removed, got %v", a.WorktreeName, removed)
	}
	if !env.hub.has(string(event.TypeAgentDeleted)) {
		t.Fatal("expected agent:deleted event")
	}
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "worker")

	if err := env.eng.Pause(context.Background(), a.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	got, err := env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != agent.StatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if !env.hub.has(string(event.TypeAgentPaused)) {
		t.Fatal("expected agent:paused event")
	}

	if err := env.eng.Resume(context.Background(), a.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, err = env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != agent.StatusIdle {
		t.Fatalf("expected idle after resume, got %s", got.Status)
	}
}

func TestPauseMarksRunningTasksPaused(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "worker")

	env.prov.mu.Lock()
	env.prov.block = true
	env.prov.started = make(chan struct{}, 1)
	env.prov.mu.Unlock()

	if _, err := env.eng.ExecuteTask(context.Background(), a.ID, "long job", time.Minute); err != nil {
		t.Fatalf("execute task: %v", err)
	}
	select {
	case <-env.prov.started:
	case <-time.After(3 * time.Second):
		t.Fatal("task never reached the backend")
	}

	if err := env.eng.Pause(context.Background(), a.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	got, err := env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != agent.StatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Status != agent.TaskPaused {
		t.Fatalf("expected task paused, got %+v", got.Tasks)
	}
}

func TestStopCancelsAllInFlightTasks(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "worker")

	env.prov.mu.Lock()
	env.prov.block = true
	env.prov.started = make(chan struct{}, 2)
	env.prov.mu.Unlock()

	for i := 0; i < 2; i++ {
		if _, err := env.eng.ExecuteTask(context.Background(), a.ID, "job", time.Minute); err != nil {
			t.Fatalf("execute task %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-env.prov.started:
		case <-time.After(3 * time.Second):
			t.Fatalf("task %d never reached the backend", i)
		}
	}

	if err := env.eng.Stop(context.Background(), a.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got, err := env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != agent.StatusIdle {
		t.Fatalf("expected idle after stop, got %s", got.Status)
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got.Tasks))
	}
	for _, task := range got.Tasks {
		if task.Status != agent.TaskCancelled {
			t.Fatalf("expected task cancelled, got %s", task.Status)
		}
		if task.CompletedAt == nil {
			t.Fatal("expected completion timestamp on cancelled task")
		}
	}

	// The execution goroutines unwind without reverting the cancelled status.
	waitFor(t, "task handles drained", func() bool {
		n := 0
		env.eng.tasks.Range(func(_, _ any) bool { n++; return true })
		return n == 0
	})
	got, err = env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, task := range got.Tasks {
		if task.Status != agent.TaskCancelled {
			t.Fatalf("cancelled status was overwritten to %s", task.Status)
		}
	}
}

func TestApplySkills(t *testing.T) {
	env := newTestEngine(t)
	env.skills.skills["go-review"] = &skill.Skill{
		ID:   "go-review",
		Name: "Go Review",
		Files: []skill.File{
			{Type: skill.FileTypeInstructions, Content: "Review Go code."},
			{Type: skill.FileTypeInstructions, Content: "Prefer table tests."},
		},
	}
	a := env.createAgent(t, "reviewer")

	if err := env.eng.ApplySkills(context.Background(), a.ID, []string{"go-review"}); err != nil {
		t.Fatalf("apply skills: %v", err)
	}
	// Re-applying the same skill is a no-op.
	if err := env.eng.ApplySkills(context.Background(), a.ID, []string{"go-review"}); err != nil {
		t.Fatalf("re-apply skills: %v", err)
	}

	got, err := env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.SkillIDs) != 1 || got.SkillIDs[0] != "go-review" {
		t.Fatalf("expected single skill id, got %v", got.SkillIDs)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 skill messages, got %d", len(got.Messages))
	}
	for _, m := range got.Messages {
		if m.Role != agent.RoleSystem {
			t.Fatalf("expected system role, got %s", m.Role)
		}
		if m.Metadata["skill_id"] != "go-review" {
			t.Fatalf("expected skill_id metadata, got %v", m.Metadata)
		}
	}
	if !env.hub.has(string(event.TypeSkillApplied)) {
		t.Fatal("expected skill:applied event")
	}
}

func TestApplyUnknownSkill(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "worker")

	err := env.eng.ApplySkills(context.Background(), a.ID, []string{"nope"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetPermissionMode(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "worker")

	if err := env.eng.SetPermissionMode(context.Background(), a.ID, permission.ModePlan); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	got, err := env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PermissionMode != permission.ModePlan {
		t.Fatalf("expected plan mode, got %s", got.PermissionMode)
	}

	if err := env.eng.SetPermissionMode(context.Background(), a.ID, "bogus"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown mode, got %v", err)
	}
	if err := env.eng.SetPermissionMode(context.Background(), a.ID, permission.ModeBypass); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for bypass, got %v", err)
	}
}

func TestReapOnceSkipsRunningAgents(t *testing.T) {
	env := newTestEngine(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env.eng.now = func() time.Time { return base }

	idle := env.createAgent(t, "idle")
	busy := env.createAgent(t, "busy")

	env.eng.mu.Lock()
	env.eng.agents[busy.ID].Status = agent.StatusRunning
	env.eng.mu.Unlock()

	// Both are now older than the reap age; only the idle one goes.
	env.eng.now = func() time.Time { return base.Add(25 * time.Hour) }
	env.eng.reapOnce()

	if _, err := env.eng.Get(context.Background(), idle.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected idle agent reaped, got %v", err)
	}
	if _, err := env.eng.Get(context.Background(), busy.ID); err != nil {
		t.Fatalf("expected running agent kept, got %v", err)
	}
}

func TestReapOnceKeepsFreshAgents(t *testing.T) {
	env := newTestEngine(t, func(cfg *config.Config) {
		cfg.Engine.ReapAge = time.Hour
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env.eng.now = func() time.Time { return base }
	a := env.createAgent(t, "fresh")

	env.eng.now = func() time.Time { return base.Add(30 * time.Minute) }
	env.eng.reapOnce()

	if _, err := env.eng.Get(context.Background(), a.ID); err != nil {
		t.Fatalf("expected fresh agent kept, got %v", err)
	}
}

func TestStartResetsRunningAgents(t *testing.T) {
	env := newTestEngine(t)

	st := env.store
	st.agents["a1"] = &agent.Agent{ID: "a1", Name: "orphan", Status: agent.StatusRunning}

	if err := env.eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	got, err := env.eng.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != agent.StatusIdle {
		t.Fatalf("expected idle after restart, got %s", got.Status)
	}
}
