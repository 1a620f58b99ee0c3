package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiveworks/hive/internal/domain"
	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/change"
)

// Store implements the persistence port using PostgreSQL. Message, task, and
// skill lists are stored as JSONB so that ordering round-trips exactly.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveAgent upserts the full agent record.
func (s *Store) SaveAgent(ctx context.Context, a *agent.Agent) error {
	messages, err := json.Marshal(a.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	tasks, err := json.Marshal(a.Tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	skillIDs, err := json.Marshal(a.SkillIDs)
	if err != nil {
		return fmt.Errorf("marshal skill ids: %w", err)
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, project_path, worktree_name, worktree_path, provider, model, status, permission_mode, messages, tasks, skill_ids, metadata, last_active_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   status = EXCLUDED.status,
		   permission_mode = EXCLUDED.permission_mode,
		   messages = EXCLUDED.messages,
		   tasks = EXCLUDED.tasks,
		   skill_ids = EXCLUDED.skill_ids,
		   metadata = EXCLUDED.metadata,
		   last_active_at = EXCLUDED.last_active_at,
		   updated_at = EXCLUDED.updated_at`,
		a.ID, a.Name, a.ProjectPath, a.WorktreeName, a.WorktreePath, a.Provider, a.Model,
		string(a.Status), string(a.PermissionMode), messages, tasks, skillIDs, metadata,
		a.LastActiveAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

const agentColumns = `id, name, project_path, worktree_name, worktree_path, provider, model, status, permission_mode, messages, tasks, skill_ids, metadata, last_active_at, created_at, updated_at`

func scanAgent(scanner interface{ Scan(dest ...any) error }, a *agent.Agent) error {
	var messages, tasks, skillIDs, metadata []byte
	if err := scanner.Scan(
		&a.ID, &a.Name, &a.ProjectPath, &a.WorktreeName, &a.WorktreePath,
		&a.Provider, &a.Model, &a.Status, &a.PermissionMode,
		&messages, &tasks, &skillIDs, &metadata,
		&a.LastActiveAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return err
	}
	if err := json.Unmarshal(messages, &a.Messages); err != nil {
		return fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal(tasks, &a.Tasks); err != nil {
		return fmt.Errorf("unmarshal tasks: %w", err)
	}
	if err := json.Unmarshal(skillIDs, &a.SkillIDs); err != nil {
		return fmt.Errorf("unmarshal skill ids: %w", err)
	}
	if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}

// GetAgent returns one agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM agents WHERE id = $1`, agentColumns), id)

	var a agent.Agent
	if err := scanAgent(row, &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

// ListAgents returns all agents ordered by creation time.
func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM agents ORDER BY created_at ASC`, agentColumns))
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		var a agent.Agent
		if err := scanAgent(rows, &a); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeleteAgent removes one agent by id.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SaveChange inserts a new code change record.
func (s *Store) SaveChange(ctx context.Context, c *change.CodeChange) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO code_changes (id, agent_id, task_id, file_path, original_content, new_content, diff_text, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.AgentID, c.TaskID, c.FilePath, c.OriginalContent, c.NewContent, c.DiffText,
		string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save change %s: %w", c.ID, err)
	}
	return nil
}

const changeColumns = `id, agent_id, task_id, file_path, original_content, new_content, diff_text, status, created_at`

// GetChange returns one code change by id.
func (s *Store) GetChange(ctx context.Context, id string) (*change.CodeChange, error) {
	var c change.CodeChange
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM code_changes WHERE id = $1`, changeColumns), id).
		Scan(&c.ID, &c.AgentID, &c.TaskID, &c.FilePath, &c.OriginalContent, &c.NewContent,
			&c.DiffText, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("change %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get change %s: %w", id, err)
	}
	return &c, nil
}

// ListChangesByAgent returns all code changes for an agent in creation order.
func (s *Store) ListChangesByAgent(ctx context.Context, agentID string) ([]change.CodeChange, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM code_changes WHERE agent_id = $1 ORDER BY created_at ASC`, changeColumns), agentID)
	if err != nil {
		return nil, fmt.Errorf("list changes for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var changes []change.CodeChange
	for rows.Next() {
		var c change.CodeChange
		if err := rows.Scan(&c.ID, &c.AgentID, &c.TaskID, &c.FilePath, &c.OriginalContent,
			&c.NewContent, &c.DiffText, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// UpdateChangeStatus transitions a code change's review status.
func (s *Store) UpdateChangeStatus(ctx context.Context, id string, status change.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE code_changes SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update change %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("change %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
