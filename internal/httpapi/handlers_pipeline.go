package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chittycorp/chittyrouter/internal/pipeline"
	"github.com/chittycorp/chittyrouter/pkg/apierr"
	"github.com/chittycorp/chittyrouter/pkg/middleware"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

type pipelineGenerateBody struct {
	SessionID  models.Identifier     `json:"sessionId,omitempty"`
	EntityType models.IdentifierType `json:"entityType"`
	Payload    map[string]string     `json:"payload"`
}

// pipelineGenerate is POST /pipeline/{kind}/generate.
func (h *handlers) pipelineGenerate(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	kind := chi.URLParam(r, "kind")

	var body pipelineGenerateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid pipeline request body"))
		return
	}

	caller := pipeline.CallerContext{Source: "http"}
	if id := middleware.GetIdentity(r.Context()); id != nil {
		caller.AuthTier = id.Role
	}

	exec, err := h.d.Pipeline.Generate(r.Context(), correlationID, pipeline.Request{
		SessionID:  body.SessionID,
		Kind:       kind,
		EntityType: body.EntityType,
		Payload:    body.Payload,
		Caller:     caller,
	})
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		// A failed stage still returns the execution record (stages[] and
		// the failure reason) rather than a bare error, per the documented
		// response shape.
		_ = json.NewEncoder(w).Encode(exec)
		return
	}
	_ = json.NewEncoder(w).Encode(exec)
}

// pipelineStatus is GET /pipeline/status/{id}.
func (h *handlers) pipelineStatus(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	id := chi.URLParam(r, "id")

	exec, err := h.d.Pipeline.Status(id)
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.NotFound, correlationID, "pipeline execution not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(exec)
}
