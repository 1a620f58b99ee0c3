package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/hiveworks/hive/internal/domain"
	"github.com/hiveworks/hive/internal/domain/event"
	"github.com/hiveworks/hive/internal/domain/permission"
)

// CheckPermission decides whether an action may proceed under the agent's
// permission mode. When the mode requires approval a pending request is
// queued and its id returned with a not-allowed result.
func (e *Engine) CheckPermission(ctx context.Context, agentID string, action permission.ActionType, name string, details map[string]string) (*permission.Result, error) {
	lk := e.lockFor(agentID)
	lk.Lock()
	a, err := e.lookup(agentID)
	if err != nil {
		lk.Unlock()
		return nil, err
	}
	mode := a.PermissionMode
	lk.Unlock()

	switch mode {
	case permission.ModeBypass:
		return &permission.Result{Allowed: true}, nil
	case permission.ModePlan:
		// Analysis-only mode blocks everything without queueing.
		return &permission.Result{Allowed: false}, nil
	case permission.ModeAutoAcceptEdits:
		if action == permission.ActionEdit {
			return &permission.Result{Allowed: true}, nil
		}
	}

	req := &permission.Request{
		ID:        newID(),
		AgentID:   agentID,
		Action:    action,
		Name:      name,
		Details:   details,
		Status:    permission.StatusPending,
		CreatedAt: e.now().UTC(),
	}
	e.permMu.Lock()
	e.pending[req.ID] = req
	e.permMu.Unlock()

	e.notify(ctx, event.TypePermissionRequest, agentID, "", event.PermissionPayload{
		AgentID:   agentID,
		RequestID: req.ID,
		Action:    string(action),
		Name:      name,
	})
	return &permission.Result{Allowed: false, RequestID: req.ID}, nil
}

// ApproveRequest transitions a pending request to approved. Approved
// requests remain queryable until ClearApproved is called.
func (e *Engine) ApproveRequest(ctx context.Context, requestID string) error {
	e.permMu.Lock()
	defer e.permMu.Unlock()

	req, ok := e.pending[requestID]
	if !ok {
		return fmt.Errorf("permission request %s: %w", requestID, domain.ErrNotFound)
	}
	now := e.now().UTC()
	req.Status = permission.StatusApproved
	req.ResolvedAt = &now
	delete(e.pending, requestID)
	e.approved[requestID] = req
	return nil
}

// RejectRequest transitions a pending request to rejected and drops it from
// the pending index.
func (e *Engine) RejectRequest(ctx context.Context, requestID string) error {
	e.permMu.Lock()
	defer e.permMu.Unlock()

	req, ok := e.pending[requestID]
	if !ok {
		return fmt.Errorf("permission request %s: %w", requestID, domain.ErrNotFound)
	}
	now := e.now().UTC()
	req.Status = permission.StatusRejected
	req.ResolvedAt = &now
	delete(e.pending, requestID)
	return nil
}

// PendingRequests returns all unresolved requests, oldest first. An empty
// agentID returns requests across all agents.
func (e *Engine) PendingRequests(agentID string) []permission.Request {
	e.permMu.Lock()
	defer e.permMu.Unlock()

	out := make([]permission.Request, 0, len(e.pending))
	for _, req := range e.pending {
		if agentID != "" && req.AgentID != agentID {
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ApprovedRequest returns a resolved-approved request by id.
func (e *Engine) ApprovedRequest(requestID string) (*permission.Request, error) {
	e.permMu.Lock()
	defer e.permMu.Unlock()

	req, ok := e.approved[requestID]
	if !ok {
		return nil, fmt.Errorf("permission request %s: %w", requestID, domain.ErrNotFound)
	}
	cp := *req
	return &cp, nil
}

// ClearApproved drops all resolved-approved requests.
func (e *Engine) ClearApproved() {
	e.permMu.Lock()
	defer e.permMu.Unlock()
	e.approved = make(map[string]*permission.Request)
}
