package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"todo-sync/internal/cache"
	"todo-sync/internal/controller"
	"todo-sync/internal/models"
	"todo-sync/internal/repository"
	"todo-sync/internal/routes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.TodoEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.TodoEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Action
	}
	return out
}

type fixture struct {
	handler http.Handler
	repo    *repository.Memory
	events  *recordingPublisher
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{repo: repository.NewMemory(), events: &recordingPublisher{}, redis: mr}
	h := controller.NewTodos(f.repo, cache.New(client, time.Minute), f.events)
	f.handler = routes.Router(h, time.Second)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateTodo(t *testing.T) {
	f := newFixture(t)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	w := f.do(t, http.MethodPost, "/api/todos", map[string]any{
		"id": "client-1", "text": "  Buy milk ", "completed": false,
		"createdAt": created, "updatedAt": created.Add(-time.Hour),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	todo := decode[models.Todo](t, w)
	if todo.ID != "client-1" || todo.Text != "Buy milk" {
		t.Fatalf("unexpected %+v", todo)
	}
	if !todo.CreatedAt.Equal(created) || !todo.UpdatedAt.Equal(created) {
		t.Fatalf("timestamps %v / %v, want updatedAt clamped to createdAt", todo.CreatedAt, todo.UpdatedAt)
	}

	w = f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "client-1", "text": "again"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate id status = %d", w.Code)
	}
	if msg := decode[map[string]string](t, w)["error"]; msg == "" {
		t.Fatal("error body missing")
	}

	w = f.do(t, http.MethodPost, "/api/todos", map[string]any{"text": "server id"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if generated := decode[models.Todo](t, w); generated.ID == "" || generated.CreatedAt.IsZero() {
		t.Fatalf("expected server-assigned id and timestamps, got %+v", generated)
	}
}

func TestCreateTodo_Validation(t *testing.T) {
	f := newFixture(t)
	for _, body := range []any{
		map[string]any{"text": "   "},
		map[string]any{"id": "x"},
		"{not json",
	} {
		if w := f.do(t, http.MethodPost, "/api/todos", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %v: status = %d", body, w.Code)
		}
	}
	if todos, _ := f.repo.List(context.Background()); len(todos) != 0 {
		t.Fatalf("rejected requests stored %d todos", len(todos))
	}
}

func TestGetTodos_NewestFirstAndCached(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Hour)
		f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": id, "text": id, "createdAt": at})
	}

	w := f.do(t, http.MethodGet, "/api/todos", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	todos := decode[[]models.Todo](t, w)
	if len(todos) != 3 || todos[0].ID != "new" || todos[2].ID != "old" {
		t.Fatalf("order = %+v", todos)
	}
	if !f.redis.Exists(cache.TodosKey) {
		t.Fatal("list was not cached")
	}

	f.do(t, http.MethodDelete, "/api/todos/mid", nil)
	if f.redis.Exists(cache.TodosKey) {
		t.Fatal("write did not invalidate the cache")
	}
	if todos := decode[[]models.Todo](t, f.do(t, http.MethodGet, "/api/todos", nil)); len(todos) != 2 {
		t.Fatalf("stale list after delete: %+v", todos)
	}
}

func TestGetTodos_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/todos", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("got %d %q", w.Code, w.Body)
	}
}

func TestUpdateTodo(t *testing.T) {
	f := newFixture(t)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "a", "text": "draft", "createdAt": created})

	later := created.Add(time.Minute)
	w := f.do(t, http.MethodPut, "/api/todos/a", map[string]any{"completed": true, "updatedAt": later})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	todo := decode[models.Todo](t, w)
	if !todo.Completed || todo.Text != "draft" || !todo.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected %+v", todo)
	}

	w = f.do(t, http.MethodPut, "/api/todos/a", map[string]any{"text": "final"})
	if todo := decode[models.Todo](t, w); todo.Text != "final" || !todo.Completed {
		t.Fatalf("partial update lost completed: %+v", todo)
	}

	if w := f.do(t, http.MethodPut, "/api/todos/a", map[string]any{"text": " "}); w.Code != http.StatusBadRequest {
		t.Fatalf("blank text status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/api/todos/missing", map[string]any{"completed": true}); w.Code != http.StatusNotFound {
		t.Fatalf("missing id status = %d", w.Code)
	}
}

func TestDeleteTodo(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "a", "text": "x"})

	w := f.do(t, http.MethodDelete, "/api/todos/a", nil)
	if w.Code != http.StatusOK || !decode[map[string]bool](t, w)["success"] {
		t.Fatalf("got %d %s", w.Code, w.Body)
	}
	if w := f.do(t, http.MethodDelete, "/api/todos/a", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
}

func TestBulkRoutes(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "a", "text": "a", "completed": true})
	f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "b", "text": "b"})
	f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "c", "text": "c", "completed": true})

	w := f.do(t, http.MethodPut, "/api/todos/toggle-all/all", map[string]any{"completed": true})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle-all status = %d", w.Code)
	}
	for _, todo := range decode[[]models.Todo](t, w) {
		if !todo.Completed {
			t.Fatalf("%s left active", todo.ID)
		}
	}
	if w := f.do(t, http.MethodPut, "/api/todos/toggle-all/all", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Fatalf("toggle-all without completed: %d", w.Code)
	}

	w = f.do(t, http.MethodDelete, "/api/todos/completed/all", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if n := decode[map[string]int](t, w)["deletedCount"]; n != 3 {
		t.Fatalf("deletedCount = %d", n)
	}

	want := []string{
		models.EventCreated, models.EventCreated, models.EventCreated,
		models.EventToggledAll, models.EventCleared,
	}
	got := f.events.actions()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	if w := f.do(t, http.MethodPost, "/api/todos", map[string]any{"text": "still saved"}); w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/ready", nil); w.Code != http.StatusOK {
		t.Fatalf("ready = %d", w.Code)
	}
	f.redis.Close()
	if w := f.do(t, http.MethodGet, "/ready", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with redis down = %d", w.Code)
	}
}

func TestWithoutCache(t *testing.T) {
	repo := repository.NewMemory()
	h := routes.Router(controller.NewTodos(repo, nil, nil), time.Second)
	req := httptest.NewRequest(http.MethodPost, "/api/todos", bytes.NewBufferString(`{"text":"no redis"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/todos", nil))
	if todos := decode[[]models.Todo](t, w); len(todos) != 1 {
		t.Fatalf("got %+v", todos)
	}
}

// writeBeforeSet runs write once, just before the first SET of the list key
// reaches Redis.
type writeBeforeSet struct {
	once  sync.Once
	write func()
}

func (h *writeBeforeSet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *writeBeforeSet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" {
			h.once.Do(h.write)
		}
		return next(ctx, cmd)
	}
}

func (h *writeBeforeSet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestGetTodos_WriteDuringCacheFillLeavesNoStaleList(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := repository.NewMemory()
	router := routes.Router(controller.NewTodos(repo, cache.New(client, time.Minute), nil), time.Second)
	f := &fixture{handler: router, repo: repo, events: &recordingPublisher{}, redis: mr}

	f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "a", "text": "before"})
	client.AddHook(&writeBeforeSet{write: func() {
		f.do(t, http.MethodPost, "/api/todos", map[string]any{"id": "b", "text": "during"})
	}})

	if todos := decode[[]models.Todo](t, f.do(t, http.MethodGet, "/api/todos", nil)); len(todos) != 1 {
		t.Fatalf("first read = %+v", todos)
	}
	if mr.Exists(cache.TodosKey) {
		t.Fatal("list read before the write was left in the cache")
	}
	if todos := decode[[]models.Todo](t, f.do(t, http.MethodGet, "/api/todos", nil)); len(todos) != 2 {
		t.Fatalf("second read = %+v, want both todos", todos)
	}
}
