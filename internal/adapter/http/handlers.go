// Package http exposes the engine over a JSON REST API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/permission"
	"github.com/hiveworks/hive/internal/engine"
	"github.com/hiveworks/hive/internal/port/eventstore"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	engine *engine.Engine
	events eventstore.Store // optional
}

// NewHandlers creates the handler set. events may be nil when no audit trail
// is configured.
func NewHandlers(eng *engine.Engine, events eventstore.Store) *Handlers {
	return &Handlers{engine: eng, events: events}
}

// CreateAgent handles POST /agents.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.CreateRequest](w, r)
	if !ok {
		return
	}

	a, err := h.engine.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ListAgents handles GET /agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.List(r.Context()))
}

// GetAgent handles GET /agents/{id}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAgent handles DELETE /agents/{id}.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PauseAgent handles POST /agents/{id}/pause.
func (h *Handlers) PauseAgent(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Pause)
}

// ResumeAgent handles POST /agents/{id}/resume.
func (h *Handlers) ResumeAgent(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Resume)
}

// StopAgent handles POST /agents/{id}/stop.
func (h *Handlers) StopAgent(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Stop)
}

func (h *Handlers) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	id := urlParam(r, "id")
	if err := op(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	a, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type sendMessageRequest struct {
	Content            string `json:"content"`
	DisableAutoContext bool   `json:"disable_auto_context,omitempty"`
}

// SendMessage handles POST /agents/{id}/messages.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[sendMessageRequest](w, r)
	if !ok {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.engine.SendMessage(r.Context(), urlParam(r, "id"), req.Content,
		&engine.SendOptions{DisableAutoContext: req.DisableAutoContext})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type executeTaskRequest struct {
	Description string `json:"description"`
	TimeoutSec  int    `json:"timeout_seconds,omitempty"`
}

// ExecuteTask handles POST /agents/{id}/tasks. The response carries the task
// handle; execution proceeds in the background.
func (h *Handlers) ExecuteTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[executeTaskRequest](w, r)
	if !ok {
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	task, err := h.engine.ExecuteTask(r.Context(), urlParam(r, "id"), req.Description,
		time.Duration(req.TimeoutSec)*time.Second)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// ListTasks handles GET /agents/{id}/tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	tasks := a.Tasks
	if tasks == nil {
		tasks = []agent.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type applySkillsRequest struct {
	SkillIDs []string `json:"skill_ids"`
}

// ApplySkills handles POST /agents/{id}/skills.
func (h *Handlers) ApplySkills(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[applySkillsRequest](w, r)
	if !ok {
		return
	}
	if len(req.SkillIDs) == 0 {
		writeError(w, http.StatusBadRequest, "skill_ids is required")
		return
	}

	if err := h.engine.ApplySkills(r.Context(), urlParam(r, "id"), req.SkillIDs); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPermissionModeRequest struct {
	Mode string `json:"mode"`
}

// SetPermissionMode handles PUT /agents/{id}/permission-mode.
func (h *Handlers) SetPermissionMode(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[setPermissionModeRequest](w, r)
	if !ok {
		return
	}

	err := h.engine.SetPermissionMode(r.Context(), urlParam(r, "id"), permission.Mode(req.Mode))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkPermissionRequest struct {
	Action  string            `json:"action"`
	Name    string            `json:"name"`
	Details map[string]string `json:"details,omitempty"`
}

// CheckPermission handles POST /agents/{id}/permissions/check.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[checkPermissionRequest](w, r)
	if !ok {
		return
	}

	result, err := h.engine.CheckPermission(r.Context(), urlParam(r, "id"),
		permission.ActionType(req.Action), req.Name, req.Details)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListPendingRequests handles GET /permissions/pending.
func (h *Handlers) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	writeJSON(w, http.StatusOK, h.engine.PendingRequests(agentID))
}

// ApproveRequest handles POST /permissions/{id}/approve.
func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ApproveRequest(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RejectRequest handles POST /permissions/{id}/reject.
func (h *Handlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RejectRequest(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearApprovedRequests handles DELETE /permissions/approved.
func (h *Handlers) ClearApprovedRequests(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearApproved()
	w.WriteHeader(http.StatusNoContent)
}

// ListChanges handles GET /agents/{id}/changes.
func (h *Handlers) ListChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := h.engine.ListChanges(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

// ApproveChange handles POST /changes/{id}/approve.
func (h *Handlers) ApproveChange(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ApproveChange(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RejectChange handles POST /changes/{id}/reject.
func (h *Handlers) RejectChange(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RejectChange(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyChange handles POST /changes/{id}/apply.
func (h *Handlers) ApplyChange(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ApplyChange(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAgentEvents handles GET /agents/{id}/events.
func (h *Handlers) ListAgentEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotFound, "event trail is not configured")
		return
	}
	events, err := h.events.ListByAgent(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
