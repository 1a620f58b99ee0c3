// Package eventstore defines the port for the engine's audit trail.
package eventstore

import (
	"context"

	"github.com/hiveworks/hive/internal/domain/event"
)

// Store appends and reads audited engine events.
type Store interface {
	// Append records an event. Implementations assign ID and CreatedAt when unset.
	Append(ctx context.Context, rec *event.Record) error

	// ListByAgent returns all events for an agent in append order.
	ListByAgent(ctx context.Context, agentID string) ([]event.Record, error)
}
