// Package store defines the persistence port (interface).
package store

import (
	"context"

	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/change"
)

// Store is the port interface for persistence. Implementations serialize
// their own writes; the engine awaits completion before proceeding and
// treats every error as fatal for the calling operation.
//
// Agent records round-trip with message and task ordering preserved.
type Store interface {
	// Agents
	SaveAgent(ctx context.Context, a *agent.Agent) error
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	ListAgents(ctx context.Context) ([]agent.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// Code changes
	SaveChange(ctx context.Context, c *change.CodeChange) error
	GetChange(ctx context.Context, id string) (*change.CodeChange, error)
	ListChangesByAgent(ctx context.Context, agentID string) ([]change.CodeChange, error)
	UpdateChangeStatus(ctx context.Context, id string, status change.Status) error
}
