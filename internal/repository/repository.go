package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"todo-sync/internal/models"
)

var (
	ErrNotFound  = errors.New("todo not found")
	ErrDuplicate = errors.New("todo id already exists")
)

// TodoRepository is the server-side store behind the REST API. List order is newest first.
type TodoRepository interface {
	List(ctx context.Context) ([]models.Todo, error)
	Get(ctx context.Context, id string) (models.Todo, error)
	Create(ctx context.Context, todo models.Todo) (models.Todo, error)
	Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error)
	Delete(ctx context.Context, id string) error
	// DeleteCompleted removes every completed todo and returns how many went.
	DeleteCompleted(ctx context.Context) (int, error)
	// SetAllCompleted sets completed on every todo and returns the full list.
	SetAllCompleted(ctx context.Context, completed bool) ([]models.Todo, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// applyPatch uses the caller's updatedAt unless it is missing or earlier than createdAt, then now.
func applyPatch(t models.Todo, p models.TodoPatch, now time.Time) models.Todo {
	if p.UpdatedAt.IsZero() || p.UpdatedAt.Before(t.CreatedAt) {
		p.UpdatedAt = now
	}
	return p.Apply(t)
}

func sortNewestFirst(todos []models.Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
}
