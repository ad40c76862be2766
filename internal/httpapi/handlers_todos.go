package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chittycorp/chittyrouter/pkg/apierr"
	"github.com/chittycorp/chittyrouter/pkg/middleware"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// todoUserID resolves the caller's user scope from the authenticated
// identity's subject — every todo operation is scoped to the caller
// that authenticated the request, there is no cross-user todo access.
func todoUserID(r *http.Request) string {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		return ""
	}
	return id.Subject
}

// listTodos is GET /api/todos?status=&since=.
func (h *handlers) listTodos(w http.ResponseWriter, r *http.Request) {
	userID := todoUserID(r)
	status := models.TodoStatus(r.URL.Query().Get("status"))

	var out []models.Todo
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := parseSince(since)
		if err != nil {
			apierr.WriteJSON(w, apierr.New(apierr.Validation, h.correlationID(r), "invalid since parameter"))
			return
		}
		for _, todo := range h.d.SyncHub.PullSince(userID, t) {
			if status == "" || todo.Status == status {
				out = append(out, todo)
			}
		}
	} else {
		out = h.d.SyncHub.ListTodos(userID, status)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// createTodo is POST /api/todos.
func (h *handlers) createTodo(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	var t models.Todo
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid todo body"))
		return
	}
	t.UserID = todoUserID(r)

	created, err := h.d.SyncHub.CreateTodo(r.Context(), correlationID, t)
	if err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.InternalInvariantViolated, correlationID, err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

// getTodo is GET /api/todos/{id}.
func (h *handlers) getTodo(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	id := models.Identifier(chi.URLParam(r, "id"))

	t, err := h.d.SyncHub.GetTodo(todoUserID(r), id)
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.NotFound, correlationID, "todo not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(t)
}

type updateTodoBody struct {
	Content string            `json:"content"`
	Status  models.TodoStatus `json:"status"`
}

// updateTodo is PUT /api/todos/{id}.
func (h *handlers) updateTodo(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	id := models.Identifier(chi.URLParam(r, "id"))

	var body updateTodoBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid todo body"))
		return
	}

	t, err := h.d.SyncHub.UpdateTodo(todoUserID(r), id, body.Content, body.Status)
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.NotFound, correlationID, "todo not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(t)
}

// deleteTodo is DELETE /api/todos/{id}.
func (h *handlers) deleteTodo(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	id := models.Identifier(chi.URLParam(r, "id"))

	if err := h.d.SyncHub.DeleteTodo(todoUserID(r), id); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.NotFound, correlationID, "todo not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncTodosBody struct {
	UserID string        `json:"userId"`
	Batch  []models.Todo `json:"batch"`
}

// syncTodos is POST /api/todos/sync.
func (h *handlers) syncTodos(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	var body syncTodosBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid sync body"))
		return
	}
	userID := body.UserID
	if userID == "" {
		userID = todoUserID(r)
	}

	out := h.d.SyncHub.SyncTodos(userID, body.Batch)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// todosSince is GET /api/todos/since/{timestamp}.
func (h *handlers) todosSince(w http.ResponseWriter, r *http.Request) {
	correlationID := h.correlationID(r)
	t, err := parseSince(chi.URLParam(r, "timestamp"))
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.Validation, correlationID, "invalid timestamp"))
		return
	}

	out := h.d.SyncHub.PullSince(todoUserID(r), t)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// parseSince accepts either RFC3339 or a Unix epoch (seconds).
func parseSince(raw string) (time.Time, error) {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}
