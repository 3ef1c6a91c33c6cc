// Package local persists the todo collection as one JSON document under a
// fixed key of a kv.Store.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"todo-sync/internal/kv"
	"todo-sync/internal/models"
	"todo-sync/internal/store"
)

// StorageKey is the key the collection lives under.
const StorageKey = "todos"

var (
	ErrNotFound  = errors.New("todo not found")
	ErrDuplicate = errors.New("todo id already exists")
)

// Adapter is the local-storage persistence adapter. Todos keep insertion order.
type Adapter struct {
	kv  kv.Store
	key string

	// Serializes this process's writers; the kv store's Update guards against other processes.
	mu sync.Mutex
}

var _ store.Adapter = (*Adapter)(nil)

func New(s kv.Store) *Adapter {
	return &Adapter{kv: s, key: StorageKey}
}

func (a *Adapter) Ordering() models.Ordering { return models.InsertionOrder }

// Load returns the stored collection; a key that was never written is an empty collection.
func (a *Adapter) Load(ctx context.Context) ([]models.Todo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.read(ctx)
}

// Save overwrites the stored collection with todos.
func (a *Adapter) Save(ctx context.Context, todos []models.Todo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.write(ctx, todos)
}

func (a *Adapter) Create(ctx context.Context, todo models.Todo) (models.Todo, error) {
	err := a.modify(ctx, func(todos []models.Todo) ([]models.Todo, error) {
		if indexOf(todos, todo.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, todo.ID)
		}
		return append(todos, todo), nil
	})
	if err != nil {
		return models.Todo{}, err
	}
	return todo, nil
}

func (a *Adapter) Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error) {
	var updated models.Todo
	err := a.modify(ctx, func(todos []models.Todo) ([]models.Todo, error) {
		i := indexOf(todos, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		todos[i] = patch.Apply(todos[i])
		updated = todos[i]
		return todos, nil
	})
	return updated, err
}

// Delete removes id. A missing id is not an error.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	return a.modify(ctx, func(todos []models.Todo) ([]models.Todo, error) {
		i := indexOf(todos, id)
		if i < 0 {
			return todos, nil
		}
		return append(todos[:i], todos[i+1:]...), nil
	})
}

func (a *Adapter) ClearCompleted(ctx context.Context) (int, error) {
	var removed int
	err := a.modify(ctx, func(todos []models.Todo) ([]models.Todo, error) {
		removed = 0
		kept := make([]models.Todo, 0, len(todos))
		for _, t := range todos {
			if t.Completed {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		return kept, nil
	})
	return removed, err
}

func (a *Adapter) ToggleAll(ctx context.Context, completed bool) ([]models.Todo, error) {
	var out []models.Todo
	err := a.modify(ctx, func(todos []models.Todo) ([]models.Todo, error) {
		for i, t := range todos {
			if t.Completed != completed {
				todos[i] = models.TodoPatch{Completed: &completed}.Apply(t)
			}
		}
		out = append([]models.Todo(nil), todos...)
		return todos, nil
	})
	return out, err
}

// modify is one atomic read-modify-write of the key. fn may run more than once
// when another process writes the key concurrently.
func (a *Adapter) modify(ctx context.Context, fn func([]models.Todo) ([]models.Todo, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.kv.Update(ctx, a.key, func(current []byte) ([]byte, error) {
		todos, err := decode(a.key, current)
		if err != nil {
			return nil, err
		}
		todos, err = fn(todos)
		if err != nil {
			return nil, err
		}
		return encode(a.key, todos)
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", a.key, err)
	}
	return nil
}

func (a *Adapter) read(ctx context.Context) ([]models.Todo, error) {
	data, err := a.kv.Get(ctx, a.key)
	if errors.Is(err, kv.ErrNotFound) {
		return []models.Todo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.key, err)
	}
	return decode(a.key, data)
}

func (a *Adapter) write(ctx context.Context, todos []models.Todo) error {
	data, err := encode(a.key, todos)
	if err != nil {
		return err
	}
	if err := a.kv.Put(ctx, a.key, data); err != nil {
		return fmt.Errorf("write %s: %w", a.key, err)
	}
	return nil
}

// decode treats a missing value as an empty collection.
func decode(key string, data []byte) ([]models.Todo, error) {
	todos := []models.Todo{}
	if data == nil {
		return todos, nil
	}
	if err := json.Unmarshal(data, &todos); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if todos == nil {
		todos = []models.Todo{}
	}
	return todos, nil
}

func encode(key string, todos []models.Todo) ([]byte, error) {
	if todos == nil {
		todos = []models.Todo{}
	}
	data, err := json.Marshal(todos)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return data, nil
}

func indexOf(todos []models.Todo, id string) int {
	for i := range todos {
		if todos[i].ID == id {
			return i
		}
	}
	return -1
}
