// Package synchub implements the Sync Hub: the authoritative side of
// vector-clock session and todo synchronization across replicas.
//
// Grounded on the teacher's internal/sessions.MemorySessionStore for the
// session half (map + RWMutex, not-found/already-exists error shapes),
// generalized from a single CreateSession/UpdateSession/GetSession
// contract to one that also owns per-user todo sync, conflict
// resolution, and a change-notification stream.
package synchub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/internal/vclock"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

var (
	ErrSessionNotFound = errors.New("synchub: session not found")
	ErrTodoNotFound    = errors.New("synchub: todo not found")
)

// ConflictStrategy selects how SyncTodos resolves a concurrent update.
type ConflictStrategy string

const (
	LastWriteWins  ConflictStrategy = "last_write_wins"
	StatusPriority ConflictStrategy = "status_priority"
	KeepBoth       ConflictStrategy = "keep_both"
)

// ConflictLogEntry records one resolved (or flagged) conflict.
type ConflictLogEntry struct {
	TodoID   models.Identifier
	UserID   string
	Strategy ConflictStrategy
	At       time.Time
}

// ChangeEvent is one entry in the WatchChanges stream.
type ChangeEvent struct {
	Action string // "upsert" or "delete"
	Todo   models.Todo
}

// watcherBufferSize bounds a subscriber's backlog; a slow consumer drops
// its oldest buffered event rather than stalling the hub, matching the
// spec's drop-oldest backpressure choice for WatchChanges.
const watcherBufferSize = 64

// Hub is the Sync Hub's in-memory authoritative store. A durable backend
// can be substituted by swapping the two maps for a KV-backed
// implementation without changing the exported contract.
type Hub struct {
	mu       sync.RWMutex
	replicaID string
	sessions map[models.Identifier]*models.Session
	todos    map[string]map[models.Identifier]*models.Todo // userID -> todoID -> todo
	conflicts []ConflictLogEntry
	watchers map[string][]chan ChangeEvent

	identity *identityclient.Client
	strategy ConflictStrategy
}

// Config bundles the Hub's collaborators and policy.
type Config struct {
	ReplicaID string
	Identity  *identityclient.Client
	Strategy  ConflictStrategy // default last_write_wins
}

// New builds an empty Hub.
func New(cfg Config) *Hub {
	if cfg.ReplicaID == "" {
		cfg.ReplicaID = "synchub"
	}
	if cfg.Strategy == "" {
		cfg.Strategy = LastWriteWins
	}
	return &Hub{
		replicaID: cfg.ReplicaID,
		sessions:  make(map[models.Identifier]*models.Session),
		todos:     make(map[string]map[models.Identifier]*models.Todo),
		watchers:  make(map[string][]chan ChangeEvent),
		identity:  cfg.Identity,
		strategy:  cfg.Strategy,
	}
}

// CreateSession mints a fresh session identifier and stores it with an
// initial clock of {replicaId: 1}.
func (h *Hub) CreateSession(ctx context.Context, correlationID, userID string, state map[string]interface{}) (models.Session, error) {
	var id models.Identifier
	if h.identity != nil {
		mintedID, err := h.identity.Mint(ctx, correlationID, models.TypeContext, map[string]string{"userId": userID})
		if err != nil {
			return models.Session{}, err
		}
		id = mintedID
	} else {
		id = models.Identifier(uuid.NewString())
	}

	now := time.Now().UTC()
	sess := models.Session{
		ID:          id,
		ReplicaID:   h.replicaID,
		Clock:       vclock.Tick(vclock.New(), h.replicaID),
		State:       state,
		CreatedAt:   now,
		LastUpdated: now,
		Status:      models.SessionActive,
	}

	h.mu.Lock()
	h.sessions[id] = &sess
	h.mu.Unlock()
	return sess, nil
}

// GetSession returns a copy of the stored session.
func (h *Hub) GetSession(id models.Identifier) (models.Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// UpdateSession merges delta into the session's state field-by-field
// (last-writer-wins at the field level) and merges the vector clock,
// using clock precedence only to decide whether the incoming delta
// should be applied at all: a remoteClock that the stored clock already
// dominates is a stale resend and is accepted as a no-op merge.
func (h *Hub) UpdateSession(id models.Identifier, delta map[string]interface{}, remoteClock models.VectorClock) (models.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	order := vclock.Compare(sess.Clock, remoteClock)
	if order != vclock.After {
		if sess.State == nil {
			sess.State = map[string]interface{}{}
		}
		for k, v := range delta {
			sess.State[k] = v
		}
	}
	sess.Clock = vclock.Merge(vclock.Tick(sess.Clock, h.replicaID), remoteClock)
	sess.LastUpdated = time.Now().UTC()
	return *sess, nil
}

// SyncOutcome is the result of one SyncTodos call.
type SyncOutcome struct {
	Accepted  []models.Todo
	Conflicts []models.Todo
}

// SyncTodos applies an incoming batch against the hub's stored todos for
// userID using per-todo vector-clock comparison: before takes the
// incoming todo, after keeps the local one, equal is a no-op, and
// concurrent is a conflict resolved per the configured strategy.
func (h *Hub) SyncTodos(userID string, batch []models.Todo) SyncOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID, ok := h.todos[userID]
	if !ok {
		byID = make(map[models.Identifier]*models.Todo)
		h.todos[userID] = byID
	}

	var out SyncOutcome
	for _, incoming := range batch {
		local, exists := byID[incoming.ID]
		if !exists {
			stored := incoming
			h.storeTodo(byID, &stored)
			out.Accepted = append(out.Accepted, stored)
			continue
		}

		switch vclock.Compare(local.Clock, incoming.Clock) {
		case vclock.Before:
			stored := incoming
			h.storeTodo(byID, &stored)
			out.Accepted = append(out.Accepted, stored)
		case vclock.After, vclock.Equal:
			out.Accepted = append(out.Accepted, *local)
		default: // Concurrent
			resolved := h.resolveConflict(userID, *local, incoming)
			out.Accepted = append(out.Accepted, resolved...)
			out.Conflicts = append(out.Conflicts, incoming)
		}
	}
	return out
}

func (h *Hub) storeTodo(byID map[models.Identifier]*models.Todo, t *models.Todo) {
	byID[t.ID] = t
	h.notify(t.UserID, ChangeEvent{Action: changeAction(t), Todo: *t})
}

func changeAction(t *models.Todo) string {
	if !t.Visible() {
		return "delete"
	}
	return "upsert"
}

// resolveConflict applies the configured strategy to a concurrent pair
// and returns the todo(s) that should be stored as the resolution.
func (h *Hub) resolveConflict(userID string, local, incoming models.Todo) []models.Todo {
	byID := h.todos[userID]
	h.conflicts = append(h.conflicts, ConflictLogEntry{TodoID: local.ID, UserID: userID, Strategy: h.strategy, At: time.Now().UTC()})

	switch h.strategy {
	case StatusPriority:
		winner := local
		if statusRank(incoming.Status) > statusRank(local.Status) {
			winner = incoming
		}
		stored := winner
		h.storeTodo(byID, &stored)
		return []models.Todo{stored}

	case KeepBoth:
		local.ConflictWith = incoming.ID
		incoming.ConflictWith = local.ID
		localCopy, incomingCopy := local, incoming
		h.storeTodo(byID, &localCopy)
		byID[incoming.ID] = &incomingCopy
		h.notify(userID, ChangeEvent{Action: "upsert", Todo: incomingCopy})
		return []models.Todo{localCopy, incomingCopy}

	default: // LastWriteWins
		winner := local
		switch {
		case incoming.UpdatedAt.After(local.UpdatedAt):
			winner = incoming
		case incoming.UpdatedAt.Equal(local.UpdatedAt) && vclock.Sum(incoming.Clock) > vclock.Sum(local.Clock):
			winner = incoming
		}
		stored := winner
		h.storeTodo(byID, &stored)
		return []models.Todo{stored}
	}
}

func statusRank(s models.TodoStatus) int {
	switch s {
	case models.TodoCompleted:
		return 2
	case models.TodoInProgress:
		return 1
	default:
		return 0
	}
}

// CreateTodo keeps a client-chosen identifier when t.ID is set; otherwise
// it mints a fresh one (a local UUID when the hub has no identity
// client). It stores the new todo with its clock ticked for this replica.
func (h *Hub) CreateTodo(ctx context.Context, correlationID string, t models.Todo) (models.Todo, error) {
	if t.ID == "" {
		if h.identity != nil {
			id, err := h.identity.Mint(ctx, correlationID, models.TypeFact, map[string]string{"userId": t.UserID})
			if err != nil {
				return models.Todo{}, err
			}
			t.ID = id
		} else {
			t.ID = models.Identifier(uuid.NewString())
		}
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	t.Clock = vclock.Tick(t.Clock, h.replicaID)

	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.todos[t.UserID]
	if !ok {
		byID = make(map[models.Identifier]*models.Todo)
		h.todos[t.UserID] = byID
	}
	h.storeTodo(byID, &t)
	return t, nil
}

// GetTodo returns a single todo by (userID, id).
func (h *Hub) GetTodo(userID string, id models.Identifier) (models.Todo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.todos[userID][id]
	if !ok {
		return models.Todo{}, ErrTodoNotFound
	}
	return *t, nil
}

// UpdateTodo applies delta to an existing todo, ticks its clock, and
// bumps updatedAt — the single-item counterpart to SyncTodos, for
// PUT /api/todos/{id}.
func (h *Hub) UpdateTodo(userID string, id models.Identifier, content string, status models.TodoStatus) (models.Todo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID, ok := h.todos[userID]
	if !ok {
		return models.Todo{}, ErrTodoNotFound
	}
	t, ok := byID[id]
	if !ok {
		return models.Todo{}, ErrTodoNotFound
	}

	if content != "" {
		t.Content = content
	}
	if status != "" {
		t.Status = status
	}
	t.UpdatedAt = time.Now().UTC()
	t.Clock = vclock.Tick(t.Clock, h.replicaID)
	h.storeTodo(byID, t)
	return *t, nil
}

// DeleteTodo soft-deletes a todo: deletedAt is stamped rather than the
// record removed, per the Sync Hub's soft-delete invariant.
func (h *Hub) DeleteTodo(userID string, id models.Identifier) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID, ok := h.todos[userID]
	if !ok {
		return ErrTodoNotFound
	}
	t, ok := byID[id]
	if !ok {
		return ErrTodoNotFound
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	t.UpdatedAt = now
	t.Clock = vclock.Tick(t.Clock, h.replicaID)
	h.storeTodo(byID, t)
	return nil
}

// ListTodos returns every visible todo for userID, optionally filtered
// to a single status, in ascending UpdatedAt order.
func (h *Hub) ListTodos(userID string, status models.TodoStatus) []models.Todo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []models.Todo
	for _, t := range h.todos[userID] {
		if !t.Visible() {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// ConflictLog returns a copy of the accumulated conflict log.
func (h *Hub) ConflictLog() []ConflictLogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ConflictLogEntry, len(h.conflicts))
	copy(out, h.conflicts)
	return out
}

// PullSince returns every todo for userID updated at or after since, in
// ascending UpdatedAt order.
func (h *Hub) PullSince(userID string, since time.Time) []models.Todo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []models.Todo
	for _, t := range h.todos[userID] {
		if !t.UpdatedAt.Before(since) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// Subscribe registers a change-event watcher for userID; the returned
// cancel func must be called to release it. The channel is closed on
// cancel.
func (h *Hub) Subscribe(userID string) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, watcherBufferSize)
	h.mu.Lock()
	h.watchers[userID] = append(h.watchers[userID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.watchers[userID]
		for i, c := range list {
			if c == ch {
				h.watchers[userID] = append(list[:i], list[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// notify pushes a change event to every watcher for userID, dropping the
// oldest buffered event for a watcher whose channel is full rather than
// blocking the hub.
func (h *Hub) notify(userID string, ev ChangeEvent) {
	for _, ch := range h.watchers[userID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
