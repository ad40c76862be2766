package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chittycorp/chittyrouter/internal/agent"
	"github.com/chittycorp/chittyrouter/pkg/apierr"
)

type completeRequestBody struct {
	Prompt    string `json:"prompt"`
	TaskType  string `json:"taskType"`
	SessionID string `json:"sessionId,omitempty"`
}

// agentComplete is POST /agents/{name}/complete.
func (h *handlers) agentComplete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	correlationID := h.correlationID(r)

	var body completeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	a, err := h.d.Agents.GetOrCreate(ctx, correlationID, name)
	if err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.InternalInvariantViolated, correlationID, err))
		return
	}

	result, err := a.Complete(ctx, correlationID, agent.CompleteRequest{
		Prompt:    body.Prompt,
		TaskType:  body.TaskType,
		SessionID: body.SessionID,
	})
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":             result.Success,
		"provider":            result.Provider,
		"cost":                result.Cost,
		"agent_id":            result.AgentID,
		"memory_context_used": result.MemoryContextUsed,
		"text":                result.Text,
	})
}

// agentStats is GET /agents/{name}/stats.
func (h *handlers) agentStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	correlationID := h.correlationID(r)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	a, err := h.d.Agents.GetOrCreate(ctx, correlationID, name)
	if err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.InternalInvariantViolated, correlationID, err))
		return
	}

	stats := a.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"agent_id":           stats.AgentID,
		"total_interactions": stats.AggregateStats.TotalInteractions,
		"total_cost":         stats.AggregateStats.TotalCost,
		"provider_usage":     stats.AggregateStats.ProviderUsage,
		"model_scores":       stats.ModelScores,
	})
}

// agentHealth is GET /agents/{name}/health. Delegates to the gateway's
// provider health check, since an agent's health is really "can it
// reach a provider" — the agent itself holds no independent liveness
// state.
func (h *handlers) agentHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	correlationID := h.correlationID(r)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	a, err := h.d.Agents.GetOrCreate(ctx, correlationID, name)
	if err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.InternalInvariantViolated, correlationID, err))
		return
	}

	status := "healthy"
	if h.d.Gateway != nil {
		for _, s := range h.d.Gateway.HealthCheck(ctx) {
			if s != "healthy" {
				status = "degraded"
				break
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   status,
		"agent_id": a.Stats().AgentID,
	})
}
