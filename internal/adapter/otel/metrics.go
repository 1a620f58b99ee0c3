package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hiveworks/hive/internal/domain/agent"
)

const meterName = "hive"

// Metrics holds the engine metric instruments and implements the engine's
// Metrics interface.
type Metrics struct {
	messagesSent   metric.Int64Counter
	messageRetries metric.Int64Counter
	tasksFinished  metric.Int64Counter
	agentsReaped   metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.messagesSent, err = meter.Int64Counter("hive.messages.sent",
		metric.WithDescription("Number of message exchanges completed"))
	if err != nil {
		return nil, err
	}

	m.messageRetries, err = meter.Int64Counter("hive.messages.retries",
		metric.WithDescription("Number of message exchange retry attempts"))
	if err != nil {
		return nil, err
	}

	m.tasksFinished, err = meter.Int64Counter("hive.tasks.finished",
		metric.WithDescription("Number of tasks reaching a terminal status"))
	if err != nil {
		return nil, err
	}

	m.agentsReaped, err = meter.Int64Counter("hive.agents.reaped",
		metric.WithDescription("Number of idle agents reclaimed by the reaper"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) MessageSent(ctx context.Context) {
	m.messagesSent.Add(ctx, 1)
}

func (m *Metrics) MessageRetried(ctx context.Context) {
	m.messageRetries.Add(ctx, 1)
}

func (m *Metrics) TaskFinished(ctx context.Context, status agent.TaskStatus) {
	m.tasksFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *Metrics) AgentReaped(ctx context.Context) {
	m.agentsReaped.Add(ctx, 1)
}
