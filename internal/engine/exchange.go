package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/event"
	"github.com/hiveworks/hive/internal/port/provider"
)

// SendOptions tunes a single message exchange.
type SendOptions struct {
	// DisableAutoContext skips the project-file context blob for this
	// request only.
	DisableAutoContext bool
}

// SendMessage appends a user message, exchanges with the backend under the
// retry policy, and appends the assistant reply. The agent is Running for
// the duration of the call and returns to Idle on success; an unrecoverable
// failure leaves it in Error.
func (e *Engine) SendMessage(ctx context.Context, agentID, text string, opts *SendOptions) (*agent.Message, error) {
	return e.send(ctx, agentID, text, opts, nil)
}

// SendMessageStream is the incremental variant: response fragments are
// delivered through onChunk as they arrive. Backends without streaming
// support fall back to single-shot delivery followed by one synthetic chunk.
func (e *Engine) SendMessageStream(ctx context.Context, agentID, text string, opts *SendOptions, onChunk func(string)) (*agent.Message, error) {
	if onChunk == nil {
		onChunk = func(string) {}
	}
	return e.send(ctx, agentID, text, opts, onChunk)
}

func (e *Engine) send(ctx context.Context, agentID, text string, opts *SendOptions, onChunk func(string)) (*agent.Message, error) {
	if opts == nil {
		opts = &SendOptions{}
	}

	lk := e.lockFor(agentID)
	lk.Lock()
	defer lk.Unlock()

	a, err := e.lookup(agentID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	userMsg := agent.Message{
		ID:        newID(),
		Role:      agent.RoleUser,
		Content:   text,
		CreatedAt: now,
	}
	a.Messages = append(a.Messages, userMsg)
	a.Status = agent.StatusRunning
	a.Touch(now)
	if err := e.store.SaveAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("save agent: %w", err)
	}
	e.notify(ctx, event.TypeAgentMessage, agentID, "", event.MessagePayload{
		AgentID:   agentID,
		MessageID: userMsg.ID,
		Role:      string(userMsg.Role),
	})

	var contextMsg *agent.Message
	if !opts.DisableAutoContext {
		contextMsg = e.buildAutoContext(ctx, a, text)
	}
	msgs := outgoing(a, contextMsg)

	backend, err := e.providers.New(a.Provider, nil)
	if err != nil {
		return nil, e.markError(ctx, a, err)
	}

	reply, err := e.requestWithRetry(ctx, backend, a.Model, msgs, onChunk)
	if err != nil {
		return nil, e.markError(ctx, a, err)
	}
	if e.metrics != nil {
		e.metrics.MessageSent(ctx)
	}

	now = e.now().UTC()
	meta := map[string]string{}
	for k, v := range reply.Metadata {
		meta[k] = v
	}
	if contextMsg != nil {
		for k, v := range contextMsg.Metadata {
			meta[k] = v
		}
	}
	assistantMsg := agent.Message{
		ID:        newID(),
		Role:      agent.RoleAssistant,
		Content:   reply.Content,
		Metadata:  meta,
		CreatedAt: now,
	}
	a.Messages = append(a.Messages, assistantMsg)
	a.Status = agent.StatusIdle
	a.Touch(now)
	if err := e.store.SaveAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("save agent: %w", err)
	}
	e.notify(ctx, event.TypeAgentMessage, agentID, "", event.MessagePayload{
		AgentID:   agentID,
		MessageID: assistantMsg.ID,
		Role:      string(assistantMsg.Role),
	})

	cp := assistantMsg
	return &cp, nil
}

// markError records an unrecoverable exchange failure on the agent and
// returns the original error for the caller.
func (e *Engine) markError(ctx context.Context, a *agent.Agent, cause error) error {
	a.Status = agent.StatusError
	a.Touch(e.now().UTC())
	_ = e.store.SaveAgent(ctx, a)
	return cause
}

// requestWithRetry performs the backend call under the linear-backoff retry
// policy, preferring the streaming path when both the caller and the backend
// support it. A stream that has already delivered fragments is never retried;
// replaying it would hand the caller duplicated output.
func (e *Engine) requestWithRetry(ctx context.Context, backend provider.Provider, model string, msgs []provider.Message, onChunk func(string)) (*provider.Reply, error) {
	streamer, canStream := backend.(provider.Streamer)

	delivered := false
	var deliver func(string)
	if onChunk != nil {
		deliver = func(c string) {
			delivered = true
			onChunk(c)
		}
	}

	var reply *provider.Reply
	attempt := 0
	err := withRetry(ctx, e.cfg.MaxAttempts, e.cfg.RetryBaseDelay, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && e.metrics != nil {
			e.metrics.MessageRetried(ctx)
		}

		var (
			r   *provider.Reply
			err error
		)
		if deliver != nil && canStream {
			r, err = streamer.SendMessageStream(ctx, model, msgs, deliver)
		} else {
			r, err = backend.SendMessage(ctx, model, msgs, nil)
		}
		if err != nil {
			if delivered {
				return noRetry(err)
			}
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if onChunk != nil && !canStream {
		// Single synthetic chunk when the backend cannot stream.
		onChunk(reply.Content)
	}
	if attempt > 1 {
		if reply.Metadata == nil {
			reply.Metadata = map[string]string{}
		}
		reply.Metadata["retry_attempts"] = strconv.Itoa(attempt)
	}
	return reply, nil
}
