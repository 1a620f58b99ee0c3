package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiveworks/hive/internal/domain/event"
)

// EventStore implements the audit-trail port using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the agent_events table, assigning ID and
// CreatedAt when unset.
func (s *EventStore) Append(ctx context.Context, rec *event.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload := rec.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_events (id, agent_id, task_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.AgentID, rec.TaskID, string(rec.Type), payload, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByAgent returns all events for the given agent in append order.
func (s *EventStore) ListByAgent(ctx context.Context, agentID string) ([]event.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, task_id, event_type, payload, created_at
		 FROM agent_events WHERE agent_id = $1 ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list events for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var events []event.Record
	for rows.Next() {
		var rec event.Record
		if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.TaskID, &rec.Type, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, rec)
	}
	return events, rows.Err()
}
