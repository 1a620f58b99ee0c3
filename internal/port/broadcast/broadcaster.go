// Package broadcast defines the port for publishing engine events to
// external observers.
package broadcast

import "context"

// Broadcaster delivers a typed event to all interested observers. The engine
// has no knowledge of who, if anyone, is listening.
type Broadcaster interface {
	// BroadcastEvent sends a typed event with a JSON-serializable payload.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Multi fans an event out to several broadcasters.
type Multi []Broadcaster

// BroadcastEvent sends the event to every member in order.
func (m Multi) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, b := range m {
		b.BroadcastEvent(ctx, eventType, payload)
	}
}
