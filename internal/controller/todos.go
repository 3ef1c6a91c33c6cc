package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"todo-sync/internal/cache"
	"todo-sync/internal/models"
	"todo-sync/internal/queue"
	"todo-sync/internal/repository"
	"todo-sync/pkg/logger"
)

// Todos serves the /api/todos resource.
type Todos struct {
	repo   repository.TodoRepository
	cache  *cache.Cache
	events queue.Publisher
	now    func() time.Time
	newID  func() string

	list singleflight.Group
	// generation counts writes; a list read started before a write must not refill the cache.
	generation atomic.Uint64
}

// NewTodos wires the handlers. c may be nil (no cache) and events may be nil (no change feed).
func NewTodos(repo repository.TodoRepository, c *cache.Cache, events queue.Publisher) *Todos {
	if events == nil {
		events = queue.Nop{}
	}
	return &Todos{
		repo:   repo,
		cache:  c,
		events: events,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// GetTodos returns every todo, newest first (cache-first as raw bytes).
func (h *Todos) GetTodos(c *gin.Context) {
	ctx := c.Request.Context()
	if b, ok := h.cache.GetRaw(ctx); ok {
		c.Data(http.StatusOK, "application/json", b)
		return
	}
	v, err, _ := h.list.Do(cache.TodosKey, func() (interface{}, error) {
		// Shared by every waiting request; one caller going away must not fail the rest.
		fctx := context.WithoutCancel(ctx)
		gen := h.generation.Load()
		todos, err := h.repo.List(fctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(todos)
		if err != nil {
			return nil, err
		}
		if h.generation.Load() == gen {
			h.cache.SetRaw(fctx, b)
			// A write that finished between the check and the set may have invalidated before us.
			if h.generation.Load() != gen {
				h.cache.Invalidate(fctx)
			}
		}
		return b, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error(ctx, "GetTodos repository failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get todos"})
		return
	}
	c.Data(http.StatusOK, "application/json", v.([]byte))
}

type createRequest struct {
	ID        string     `json:"id"`
	Text      *string    `json:"text"`
	Completed bool       `json:"completed"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// CreateTodo stores a todo. The client usually supplies the id.
func (h *Todos) CreateTodo(c *gin.Context) {
	ctx := c.Request.Context()
	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if body.Text == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}
	text, ok := models.NormalizeText(*body.Text)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text must not be empty"})
		return
	}
	now := h.now()
	todo := models.Todo{ID: body.ID, Text: text, Completed: body.Completed, CreatedAt: now, UpdatedAt: now}
	if todo.ID == "" {
		todo.ID = h.newID()
	}
	if body.CreatedAt != nil && !body.CreatedAt.IsZero() {
		todo.CreatedAt = *body.CreatedAt
		todo.UpdatedAt = todo.CreatedAt
	}
	if body.UpdatedAt != nil && !body.UpdatedAt.IsZero() {
		todo.UpdatedAt = *body.UpdatedAt
	}
	if todo.UpdatedAt.Before(todo.CreatedAt) {
		todo.UpdatedAt = todo.CreatedAt
	}

	created, err := h.repo.Create(ctx, todo)
	if err != nil {
		h.fail(c, "CreateTodo", err)
		return
	}
	h.written(ctx, models.TodoEvent{Action: models.EventCreated, ID: created.ID, Todo: &created})
	c.JSON(http.StatusCreated, created)
}

type updateRequest struct {
	Text      *string    `json:"text"`
	Completed *bool      `json:"completed"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// UpdateTodo applies a partial update.
func (h *Todos) UpdateTodo(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	var body updateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	patch := models.TodoPatch{Completed: body.Completed}
	if body.Text != nil {
		text, ok := models.NormalizeText(*body.Text)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Text must not be empty"})
			return
		}
		patch.Text = &text
	}
	if body.UpdatedAt != nil {
		patch.UpdatedAt = *body.UpdatedAt
	}

	updated, err := h.repo.Update(ctx, id, patch)
	if err != nil {
		h.fail(c, "UpdateTodo", err)
		return
	}
	h.written(ctx, models.TodoEvent{Action: models.EventUpdated, ID: id, Todo: &updated})
	c.JSON(http.StatusOK, updated)
}

func (h *Todos) DeleteTodo(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.repo.Delete(ctx, id); err != nil {
		h.fail(c, "DeleteTodo", err)
		return
	}
	h.written(ctx, models.TodoEvent{Action: models.EventDeleted, ID: id})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Todos) ClearCompleted(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.repo.DeleteCompleted(ctx)
	if err != nil {
		h.fail(c, "ClearCompleted", err)
		return
	}
	h.written(ctx, models.TodoEvent{Action: models.EventCleared, Count: n})
	c.JSON(http.StatusOK, gin.H{"deletedCount": n})
}

func (h *Todos) ToggleAll(c *gin.Context) {
	ctx := c.Request.Context()
	var body struct {
		Completed *bool `json:"completed"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Completed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "completed is required"})
		return
	}
	todos, err := h.repo.SetAllCompleted(ctx, *body.Completed)
	if err != nil {
		h.fail(c, "ToggleAll", err)
		return
	}
	h.written(ctx, models.TodoEvent{Action: models.EventToggledAll, Count: len(todos)})
	c.JSON(http.StatusOK, todos)
}

// Health returns 200 if the process is alive. Used by load balancers.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready returns 200 if the repository and Redis are reachable. Used by K8s readiness checks.
func (h *Todos) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.repo.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "repository unavailable"})
		return
	}
	if err := h.cache.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
		return
	}
	c.String(http.StatusOK, "OK")
}

// written runs after every successful write: stale list out, event on the feed.
func (h *Todos) written(ctx context.Context, ev models.TodoEvent) {
	h.generation.Add(1)
	h.cache.Invalidate(ctx)
	ev.OccurredAt = h.now()
	if err := h.events.Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "Publish todo event failed", "error", err, "action", ev.Action)
	}
}

func (h *Todos) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Todo not found"})
	case errors.Is(err, repository.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "Todo with this id already exists"})
	default:
		logger.Error(c.Request.Context(), op+" failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
