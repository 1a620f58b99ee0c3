// Package provider defines the language-model backend port.
package provider

import (
	"context"
	"fmt"
)

// Message is one conversation entry sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-call extras. Progress, when set, may be invoked any
// number of times with a 0-100 percentage before the call returns.
type Options struct {
	Progress func(percent int)
}

// Reply is a backend response.
type Reply struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider is the port interface for a language-model backend.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g. "litellm").
	Name() string

	// SendMessage sends the conversation to the given model and returns the
	// full response. Cancellation propagates through ctx.
	SendMessage(ctx context.Context, model string, messages []Message, opts *Options) (*Reply, error)
}

// Streamer is implemented by providers that support incremental delivery.
// onChunk is invoked for each response fragment as it arrives; the final
// Reply carries the accumulated content.
type Streamer interface {
	SendMessageStream(ctx context.Context, model string, messages []Message, onChunk func(chunk string)) (*Reply, error)
}

// StatusError is an HTTP-like backend failure carrying the upstream status
// code, used by the exchange subsystem to classify transient errors.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Code, e.Body)
}
