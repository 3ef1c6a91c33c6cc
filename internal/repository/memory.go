package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"todo-sync/internal/models"
)

// Memory keeps todos in process. Used by tests and STORAGE_DRIVER=memory.
type Memory struct {
	mu    sync.RWMutex
	todos map[string]models.Todo
	seq   map[string]int
	next  int
	now   func() time.Time
}

var _ TodoRepository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		todos: make(map[string]models.Todo),
		seq:   make(map[string]int),
		now:   time.Now,
	}
}

func (m *Memory) List(_ context.Context) ([]models.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(), nil
}

// list orders by createdAt, breaking ties by reverse insertion.
func (m *Memory) list() []models.Todo {
	out := make([]models.Todo, 0, len(m.todos))
	for _, t := range m.todos {
		out = append(out, t)
	}
	// Pre-order by insertion so the stable sort puts later inserts first on equal createdAt.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && m.seq[out[j].ID] > m.seq[out[j-1].ID]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	sortNewestFirst(out)
	return out
}

func (m *Memory) Get(_ context.Context, id string) (models.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok {
		return models.Todo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

func (m *Memory) Create(_ context.Context, todo models.Todo) (models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[todo.ID]; ok {
		return models.Todo{}, fmt.Errorf("%w: %s", ErrDuplicate, todo.ID)
	}
	m.next++
	m.seq[todo.ID] = m.next
	m.todos[todo.ID] = todo
	return todo, nil
}

func (m *Memory) Update(_ context.Context, id string, patch models.TodoPatch) (models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok {
		return models.Todo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t = applyPatch(t, patch, m.now())
	m.todos[id] = t
	return t, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.todos, id)
	delete(m.seq, id)
	return nil
}

func (m *Memory) DeleteCompleted(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.todos {
		if t.Completed {
			delete(m.todos, id)
			delete(m.seq, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) SetAllCompleted(_ context.Context, completed bool) ([]models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, t := range m.todos {
		if t.Completed != completed {
			m.todos[id] = applyPatch(t, models.TodoPatch{Completed: &completed}, now)
		}
	}
	return m.list(), nil
}

func (m *Memory) Ping(context.Context) error  { return nil }
func (m *Memory) Close(context.Context) error { return nil }
