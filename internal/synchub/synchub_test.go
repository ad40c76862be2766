package synchub

import (
	"context"
	"testing"
	"time"

	"github.com/chittycorp/chittyrouter/internal/vclock"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

func TestCreateSessionWithoutIdentityUsesLocalUUID(t *testing.T) {
	h := New(Config{})
	sess, err := h.CreateSession(context.Background(), "corr-1", "user-1", map[string]interface{}{"foo": "bar"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a non-empty session id")
	}
	if sess.Clock["synchub"] != 1 {
		t.Fatalf("expected initial clock {synchub:1}, got %v", sess.Clock)
	}

	got, err := h.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State["foo"] != "bar" {
		t.Fatalf("state not persisted: %v", got.State)
	}
}

func TestUpdateSessionMergesClockAndAppliesDelta(t *testing.T) {
	h := New(Config{})
	sess, _ := h.CreateSession(context.Background(), "corr-2", "user-1", map[string]interface{}{})

	remote := models.VectorClock{"replica-b": 5}
	updated, err := h.UpdateSession(sess.ID, map[string]interface{}{"step": "2"}, remote)
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if updated.State["step"] != "2" {
		t.Fatal("delta not applied")
	}
	if updated.Clock["replica-b"] != 5 {
		t.Fatalf("expected merged clock to carry replica-b:5, got %v", updated.Clock)
	}
	if vclock.Compare(updated.Clock, sess.Clock) != vclock.After {
		t.Fatal("updated clock must strictly dominate the prior stored clock")
	}
}

func newTodo(id models.Identifier, userID, content string, clock models.VectorClock, updatedAt time.Time) models.Todo {
	return models.Todo{ID: id, UserID: userID, Content: content, Status: models.TodoPending, Clock: clock, CreatedAt: updatedAt, UpdatedAt: updatedAt}
}

func TestSyncTodosBeforeTakesIncoming(t *testing.T) {
	h := New(Config{})
	local := newTodo("T-1", "user-1", "old", models.VectorClock{"a": 1}, time.Now().Add(-time.Hour))
	h.todos["user-1"] = map[models.Identifier]*models.Todo{"T-1": &local}

	incoming := newTodo("T-1", "user-1", "new", models.VectorClock{"a": 2}, time.Now())
	out := h.SyncTodos("user-1", []models.Todo{incoming})

	if len(out.Accepted) != 1 || out.Accepted[0].Content != "new" {
		t.Fatalf("expected incoming to win when local is before incoming, got %+v", out.Accepted)
	}
	if len(out.Conflicts) != 0 {
		t.Fatal("no conflict expected on a before-ordered update")
	}
}

func TestSyncTodosAfterKeepsLocal(t *testing.T) {
	h := New(Config{})
	local := newTodo("T-2", "user-1", "authoritative", models.VectorClock{"a": 3}, time.Now())
	h.todos["user-1"] = map[models.Identifier]*models.Todo{"T-2": &local}

	stale := newTodo("T-2", "user-1", "stale", models.VectorClock{"a": 1}, time.Now().Add(-time.Hour))
	out := h.SyncTodos("user-1", []models.Todo{stale})

	if out.Accepted[0].Content != "authoritative" {
		t.Fatalf("expected local to win when local is after incoming, got %+v", out.Accepted)
	}
}

func TestSyncTodosConcurrentKeepBothCrossReferences(t *testing.T) {
	h := New(Config{Strategy: KeepBoth})
	local := newTodo("T-3", "user-1", "fix bug", models.VectorClock{"A": 3, "B": 2}, time.Now())
	h.todos["user-1"] = map[models.Identifier]*models.Todo{"T-3": &local}

	incoming := newTodo("T-3", "user-1", "fix bug and add tests", models.VectorClock{"A": 2, "B": 3}, time.Now())
	out := h.SyncTodos("user-1", []models.Todo{incoming})

	if len(out.Conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(out.Conflicts))
	}
	if len(out.Accepted) != 2 {
		t.Fatalf("keep_both should store both todos, got %d", len(out.Accepted))
	}
	log := h.ConflictLog()
	if len(log) != 1 {
		t.Fatalf("expected exactly one conflict log entry, got %d", len(log))
	}
	var sawLocal, sawIncoming bool
	for _, a := range out.Accepted {
		if a.ConflictWith == "T-3" {
			sawIncoming = true
		}
		if a.Content == "fix bug" && a.ConflictWith != "" {
			sawLocal = true
		}
	}
	if !sawLocal || !sawIncoming {
		t.Fatalf("expected both stored todos to cross-reference via conflictWith, got %+v", out.Accepted)
	}
}

func TestSyncTodosConcurrentStatusPriorityPicksCompleted(t *testing.T) {
	h := New(Config{Strategy: StatusPriority})
	local := newTodo("T-4", "user-1", "in progress", models.VectorClock{"A": 1, "B": 2}, time.Now())
	local.Status = models.TodoInProgress
	h.todos["user-1"] = map[models.Identifier]*models.Todo{"T-4": &local}

	incoming := newTodo("T-4", "user-1", "done", models.VectorClock{"A": 2, "B": 1}, time.Now())
	incoming.Status = models.TodoCompleted
	out := h.SyncTodos("user-1", []models.Todo{incoming})

	if len(out.Accepted) != 1 || out.Accepted[0].Status != models.TodoCompleted {
		t.Fatalf("expected completed status to win under status_priority, got %+v", out.Accepted)
	}
}

func TestPullSinceReturnsOnlyUpdatedTodos(t *testing.T) {
	h := New(Config{})
	old := newTodo("T-5", "user-1", "old", models.VectorClock{"a": 1}, time.Now().Add(-2*time.Hour))
	recent := newTodo("T-6", "user-1", "recent", models.VectorClock{"a": 1}, time.Now())
	h.todos["user-1"] = map[models.Identifier]*models.Todo{"T-5": &old, "T-6": &recent}

	got := h.PullSince("user-1", time.Now().Add(-time.Hour))
	if len(got) != 1 || got[0].ID != "T-6" {
		t.Fatalf("expected only T-6 since cutoff, got %+v", got)
	}
}

func TestCreateTodoAssignsIdentifierAndInitialClock(t *testing.T) {
	h := New(Config{})
	t1, err := h.CreateTodo(context.Background(), "corr-1", models.Todo{UserID: "user-1", Content: "write tests"})
	if err != nil {
		t.Fatalf("CreateTodo: %v", err)
	}
	if t1.ID == "" {
		t.Fatal("expected a non-empty id")
	}
	if t1.Clock["synchub"] != 1 {
		t.Fatalf("expected initial clock tick, got %v", t1.Clock)
	}

	got, err := h.GetTodo("user-1", t1.ID)
	if err != nil || got.Content != "write tests" {
		t.Fatalf("GetTodo: got=%+v err=%v", got, err)
	}
}

func TestUpdateTodoAppliesFieldsAndTicksClock(t *testing.T) {
	h := New(Config{})
	t1, _ := h.CreateTodo(context.Background(), "corr-1", models.Todo{UserID: "user-1", Content: "draft"})

	updated, err := h.UpdateTodo("user-1", t1.ID, "final", models.TodoCompleted)
	if err != nil {
		t.Fatalf("UpdateTodo: %v", err)
	}
	if updated.Content != "final" || updated.Status != models.TodoCompleted {
		t.Fatalf("fields not applied: %+v", updated)
	}
	if updated.Clock["synchub"] <= t1.Clock["synchub"] {
		t.Fatalf("expected clock to advance, before=%v after=%v", t1.Clock, updated.Clock)
	}
}

func TestDeleteTodoIsSoftAndHiddenFromList(t *testing.T) {
	h := New(Config{})
	t1, _ := h.CreateTodo(context.Background(), "corr-1", models.Todo{UserID: "user-1", Content: "temp"})

	if err := h.DeleteTodo("user-1", t1.ID); err != nil {
		t.Fatalf("DeleteTodo: %v", err)
	}

	got, err := h.GetTodo("user-1", t1.ID)
	if err != nil {
		t.Fatalf("soft-deleted todo should still be gettable: %v", err)
	}
	if got.DeletedAt == nil {
		t.Fatal("expected deletedAt to be stamped")
	}
	if list := h.ListTodos("user-1", ""); len(list) != 0 {
		t.Fatalf("expected ListTodos to hide the deleted todo, got %+v", list)
	}
}

func TestListTodosFiltersByStatus(t *testing.T) {
	h := New(Config{})
	h.CreateTodo(context.Background(), "corr-1", models.Todo{UserID: "user-1", Content: "a", Status: models.TodoPending})
	h.CreateTodo(context.Background(), "corr-1", models.Todo{UserID: "user-1", Content: "b", Status: models.TodoCompleted})

	got := h.ListTodos("user-1", models.TodoCompleted)
	if len(got) != 1 || got[0].Content != "b" {
		t.Fatalf("expected only the completed todo, got %+v", got)
	}
}

func TestSubscribeReceivesUpsertAndDropsOldestWhenFull(t *testing.T) {
	h := New(Config{})
	ch, cancel := h.Subscribe("user-1")
	defer cancel()

	h.SyncTodos("user-1", []models.Todo{newTodo("T-7", "user-1", "a", models.VectorClock{"a": 1}, time.Now())})

	select {
	case ev := <-ch:
		if ev.Action != "upsert" || ev.Todo.ID != "T-7" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
	}
}
