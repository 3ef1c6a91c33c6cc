package store

import (
	"context"

	"todo-sync/internal/models"
)

// Adapter is the persistence boundary the Store reads from and writes to.
// Implementations report failures through their error returns and never touch
// the Store's collection: they get copies and hand back fresh values.
type Adapter interface {
	// Ordering is where new todos go in the collection.
	Ordering() models.Ordering
	// Load returns the full persisted collection.
	Load(ctx context.Context) ([]models.Todo, error)
	// Create persists a todo whose id was generated by the caller.
	Create(ctx context.Context, todo models.Todo) (models.Todo, error)
	// Update applies a partial update and returns the stored record.
	Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error)
	Delete(ctx context.Context, id string) error
	// ClearCompleted removes every completed todo and returns how many went.
	ClearCompleted(ctx context.Context) (int, error)
	// ToggleAll sets completed on every todo and returns the resulting collection.
	ToggleAll(ctx context.Context, completed bool) ([]models.Todo, error)
}
