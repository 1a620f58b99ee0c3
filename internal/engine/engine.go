// Package engine implements the agent orchestration core: lifecycle
// management, the retrying message exchange, cancellable task execution, the
// permission gate, and diff extraction into reviewable code changes.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiveworks/hive/internal/config"
	"github.com/hiveworks/hive/internal/domain"
	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/event"
	"github.com/hiveworks/hive/internal/domain/permission"
	"github.com/hiveworks/hive/internal/port/broadcast"
	"github.com/hiveworks/hive/internal/port/cache"
	"github.com/hiveworks/hive/internal/port/eventstore"
	"github.com/hiveworks/hive/internal/port/provider"
	"github.com/hiveworks/hive/internal/port/skills"
	"github.com/hiveworks/hive/internal/port/store"
	"github.com/hiveworks/hive/internal/port/worktree"
)

// Metrics receives engine counters. Implementations must be safe for
// concurrent use; a nil Metrics disables instrumentation.
type Metrics interface {
	MessageSent(ctx context.Context)
	MessageRetried(ctx context.Context)
	TaskFinished(ctx context.Context, status agent.TaskStatus)
	AgentReaped(ctx context.Context)
}

// Engine is the top-level agent orchestration API. All exported methods are
// safe for concurrent use; operations on the same agent are serialized
// through a per-agent lock.
type Engine struct {
	store     store.Store
	worktrees worktree.Service
	skills    skills.Service
	providers *provider.Registry
	hub       broadcast.Broadcaster
	cfg       config.Engine

	events   eventstore.Store // optional
	cache    cache.Cache      // optional
	cacheTTL time.Duration
	metrics  Metrics // optional

	bypassAllowed bool

	mu     sync.Mutex
	agents map[string]*agent.Agent
	locks  map[string]*sync.Mutex

	tasks sync.Map // task id -> *taskHandle

	permMu   sync.Mutex
	pending  map[string]*permission.Request
	approved map[string]*permission.Request

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now func() time.Time // for testing
}

// New creates an Engine with its required collaborators. Optional
// collaborators (event store, cache, metrics) are attached via setters.
func New(
	st store.Store,
	worktrees worktree.Service,
	skillsSvc skills.Service,
	providers *provider.Registry,
	hub broadcast.Broadcaster,
	engineCfg config.Engine,
	permCfg config.Permission,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:         st,
		worktrees:     worktrees,
		skills:        skillsSvc,
		providers:     providers,
		hub:           hub,
		cfg:           engineCfg,
		bypassAllowed: permCfg.BypassAllowed,
		agents:        make(map[string]*agent.Agent),
		locks:         make(map[string]*sync.Mutex),
		pending:       make(map[string]*permission.Request),
		approved:      make(map[string]*permission.Request),
		baseCtx:       ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

// SetEventStore attaches an audit trail for engine events.
func (e *Engine) SetEventStore(es eventstore.Store) { e.events = es }

// SetCache attaches a read cache used by the auto-context builder.
func (e *Engine) SetCache(c cache.Cache, ttl time.Duration) {
	e.cache = c
	e.cacheTTL = ttl
}

// SetMetrics attaches engine instrumentation.
func (e *Engine) SetMetrics(m Metrics) { e.metrics = m }

// Start loads persisted agents into the in-memory index and launches the
// idle-agent reaper.
func (e *Engine) Start(ctx context.Context) error {
	all, err := e.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	e.mu.Lock()
	for i := range all {
		a := all[i]
		// An agent can never be mid-flight after a restart.
		if a.Status == agent.StatusRunning {
			a.Status = agent.StatusIdle
		}
		e.agents[a.ID] = &a
	}
	count := len(e.agents)
	e.mu.Unlock()

	e.wg.Add(1)
	go e.runReaper()

	slog.Info("engine started", "agents", count, "reap_interval", e.cfg.ReapInterval)
	return nil
}

// Close cancels all in-flight work and waits for background goroutines.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// lockFor returns the exclusive lock serializing operations on one agent.
func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lk, ok := e.locks[id]
	if !ok {
		lk = &sync.Mutex{}
		e.locks[id] = lk
	}
	return lk
}

// lookup returns the live agent record. Callers must hold the agent's lock.
func (e *Engine) lookup(id string) (*agent.Agent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// notify broadcasts an engine event and appends it to the audit trail
// (best-effort).
func (e *Engine) notify(ctx context.Context, evType event.Type, agentID, taskID string, payload any) {
	e.hub.BroadcastEvent(ctx, string(evType), payload)

	if e.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "type", evType, "error", err)
		return
	}
	rec := event.Record{
		AgentID: agentID,
		TaskID:  taskID,
		Type:    evType,
		Payload: data,
	}
	if err := e.events.Append(ctx, &rec); err != nil {
		slog.Error("append event", "type", evType, "agent_id", agentID, "error", err)
	}
}

// snapshot returns a detached copy safe to hand to callers.
func snapshot(a *agent.Agent) *agent.Agent {
	cp := *a
	cp.Messages = append([]agent.Message(nil), a.Messages...)
	cp.Tasks = append([]agent.Task(nil), a.Tasks...)
	cp.SkillIDs = append([]string(nil), a.SkillIDs...)
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// outgoing converts the agent's history plus an optional ephemeral context
// message into the provider wire shape. The context message is appended to
// the request only and never persisted.
func outgoing(a *agent.Agent, contextMsg *agent.Message) []provider.Message {
	msgs := make([]provider.Message, 0, len(a.Messages)+1)
	for _, m := range a.Messages {
		msgs = append(msgs, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	if contextMsg != nil {
		msgs = append(msgs, provider.Message{Role: string(contextMsg.Role), Content: contextMsg.Content})
	}
	return msgs
}

func newID() string { return uuid.NewString() }

// sortedAgents returns index contents ordered by creation time.
func (e *Engine) sortedAgents() []*agent.Agent {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*agent.Agent, 0, len(e.agents))
	for _, a := range e.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
