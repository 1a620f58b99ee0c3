// Package nats publishes engine events to NATS JetStream so out-of-process
// observers can subscribe to the agent event feed.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "HIVE"

// Publisher implements the broadcast port over NATS JetStream. Event names
// such as "agent:created" map to subjects like "hive.agent.created".
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"hive.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Publisher{nc: nc, js: js}, nil
}

// BroadcastEvent publishes the event to its mapped subject. Delivery is
// best-effort; a publish failure is logged, never propagated.
func (p *Publisher) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("nats marshal payload", "event", eventType, "error", err)
		return
	}

	subject := Subject(eventType)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		slog.Error("nats publish", "subject", subject, "error", err)
	}
}

// Subject maps an engine event name to its NATS subject.
func Subject(eventType string) string {
	return "hive." + strings.ReplaceAll(eventType, ":", ".")
}

// Close shuts down the NATS connection.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}
