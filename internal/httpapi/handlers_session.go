package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/chittycorp/chittyrouter/pkg/apierr"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

type sessionInitBody struct {
	UserID string                 `json:"userId"`
	State  map[string]interface{} `json:"state"`
}

// sessionInit is POST /session/init.
func (h *handlers) sessionInit(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	var body sessionInitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid session body"))
		return
	}
	if body.UserID == "" {
		body.UserID = todoUserID(r)
	}

	sess, err := h.d.SyncHub.CreateSession(r.Context(), correlationID, body.UserID, body.State)
	if err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.InternalInvariantViolated, correlationID, err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}

type sessionUpdateBody struct {
	SessionID models.Identifier      `json:"sessionId"`
	Delta     map[string]interface{} `json:"delta"`
	Clock     models.VectorClock     `json:"clock"`
}

// sessionState is POST /session/state — a general state merge.
func (h *handlers) sessionState(w http.ResponseWriter, r *http.Request) {
	h.updateSession(w, r)
}

// sessionAtomicFacts is POST /session/atomic-facts — the same
// merge mechanism as sessionState, scoped by convention (not
// mechanism) to facts-only deltas; the Sync Hub has no separate
// facts/state storage, so both endpoints converge on UpdateSession.
func (h *handlers) sessionAtomicFacts(w http.ResponseWriter, r *http.Request) {
	h.updateSession(w, r)
}

func (h *handlers) updateSession(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	var body sessionUpdateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid session update body"))
		return
	}

	sess, err := h.d.SyncHub.UpdateSession(body.SessionID, body.Delta, body.Clock)
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.NotFound, correlationID, "session not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}

// sessionStatus is GET /session/status?id=.
func (h *handlers) sessionStatus(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	id := models.Identifier(r.URL.Query().Get("id"))

	sess, err := h.d.SyncHub.GetSession(id)
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.NotFound, correlationID, "session not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}
