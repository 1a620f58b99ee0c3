package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. handleWS may
// be nil when no WebSocket hub is configured.
func MountRoutes(r chi.Router, h *Handlers, handleWS http.HandlerFunc) {
	r.Get("/healthz", h.Health)
	if handleWS != nil {
		r.Get("/ws", handleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Delete("/agents/{id}", h.DeleteAgent)
		r.Post("/agents/{id}/pause", h.PauseAgent)
		r.Post("/agents/{id}/resume", h.ResumeAgent)
		r.Post("/agents/{id}/stop", h.StopAgent)
		r.Post("/agents/{id}/skills", h.ApplySkills)
		r.Put("/agents/{id}/permission-mode", h.SetPermissionMode)

		// Messages and tasks
		r.Post("/agents/{id}/messages", h.SendMessage)
		r.Post("/agents/{id}/tasks", h.ExecuteTask)
		r.Get("/agents/{id}/tasks", h.ListTasks)

		// Permission gate
		r.Post("/agents/{id}/permissions/check", h.CheckPermission)
		r.Get("/permissions/pending", h.ListPendingRequests)
		r.Post("/permissions/{id}/approve", h.ApproveRequest)
		r.Post("/permissions/{id}/reject", h.RejectRequest)
		r.Delete("/permissions/approved", h.ClearApprovedRequests)

		// Code changes
		r.Get("/agents/{id}/changes", h.ListChanges)
		r.Post("/changes/{id}/approve", h.ApproveChange)
		r.Post("/changes/{id}/reject", h.RejectChange)
		r.Post("/changes/{id}/apply", h.ApplyChange)

		// Event trail
		r.Get("/agents/{id}/events", h.ListAgentEvents)
	})
}
