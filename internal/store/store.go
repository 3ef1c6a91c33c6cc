// Package store owns the in-memory todo collection and keeps it in step with a
// persistence Adapter.
//
// The Store loads the collection exactly once. Until that load resolves the
// Store is not ready and no write reaches the adapter: mutating calls wait for
// the load and then apply on top of the loaded data. Each mutation is applied
// optimistically, written through its own adapter call, and rolled back if the
// adapter reports a failure.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

var (
	// ErrWriteFailed wraps an adapter failure after the optimistic change was rolled back.
	ErrWriteFailed = errors.New("persistence write failed")
	// ErrClosed is returned by mutations on a closed Store.
	ErrClosed = errors.New("store closed")
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and write failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator for new todos.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Snapshot is everything a view needs, read under one lock.
type Snapshot struct {
	Todos  []models.Todo
	View   []models.Todo
	Filter models.Filter
	Stats  models.Stats
	Ready  bool
}

// Store is the todo collection plus its synchronization state.
type Store struct {
	adapter Adapter
	order   models.Ordering
	log     *slog.Logger
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	todos  []models.Todo
	filter models.Filter
	ready  bool
	closed bool

	loadOnce   sync.Once
	readyOnce  sync.Once
	readyCh    chan struct{}
	cancelLoad context.CancelFunc

	// Single-record mutations hold bulk for reading; ClearCompleted and
	// ToggleAll hold it exclusively.
	bulk    sync.RWMutex
	records recordLocks
}

// New returns an empty, not-ready Store backed by adapter.
func New(adapter Adapter, opts ...Option) *Store {
	s := &Store{
		adapter: adapter,
		order:   adapter.Ordering(),
		log:     logger.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
		filter:  models.FilterAll,
		readyCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts the initial load. Only the first call does anything; the load
// runs in the background and outlives ctx's cancellation, but not Close.
func (s *Store) Open(ctx context.Context) {
	s.loadOnce.Do(func() {
		loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.mu.Lock()
		s.cancelLoad = cancel
		closed := s.closed
		s.mu.Unlock()
		if closed {
			cancel()
			return
		}
		go s.load(loadCtx)
	})
}

func (s *Store) load(ctx context.Context) {
	todos, err := s.adapter.Load(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "Discarding load result for closed store")
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Initial load failed; starting empty", "error", err)
	} else {
		s.todos = s.sanitize(ctx, todos)
		s.log.DebugContext(ctx, "Initial load complete", "count", len(s.todos))
	}
	s.ready = true
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
}

// sanitize drops empty and duplicate ids and clamps updatedAt to createdAt.
func (s *Store) sanitize(ctx context.Context, todos []models.Todo) []models.Todo {
	seen := make(map[string]struct{}, len(todos))
	out := make([]models.Todo, 0, len(todos))
	for _, t := range todos {
		if _, dup := seen[t.ID]; dup || t.ID == "" {
			s.log.WarnContext(ctx, "Dropping loaded todo with duplicate or empty id", "id", t.ID)
			continue
		}
		seen[t.ID] = struct{}{}
		if t.UpdatedAt.Before(t.CreatedAt) {
			t.UpdatedAt = t.CreatedAt
		}
		out = append(out, t)
	}
	return out
}

// Close cancels a pending load and fails later mutations with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancelLoad
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.readyOnce.Do(func() { close(s.readyCh) })
}

// Ready reports whether the initial load has resolved.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// WaitReady opens the Store if needed and blocks until the initial load resolves.
func (s *Store) WaitReady(ctx context.Context) error {
	s.Open(ctx)
	select {
	case <-s.readyCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) beginRecord(ctx context.Context, id string) (func(), error) {
	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}
	s.bulk.RLock()
	release, err := s.records.acquire(ctx, id)
	if err != nil {
		s.bulk.RUnlock()
		return nil, err
	}
	return func() {
		release()
		s.bulk.RUnlock()
	}, nil
}

func (s *Store) beginBulk(ctx context.Context) (func(), error) {
	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}
	s.bulk.Lock()
	return s.bulk.Unlock, nil
}

// Add creates a todo. Text that is empty after trimming is ignored: the result
// is nil with no error.
func (s *Store) Add(ctx context.Context, text string) (*models.Todo, error) {
	text, ok := models.NormalizeText(text)
	if !ok {
		s.log.DebugContext(ctx, "Ignoring add with empty text")
		return nil, nil
	}

	id := s.newID()
	release, err := s.beginRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	todo := models.Todo{ID: id, Text: text, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	if s.indexOf(id) >= 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("add: generated id %q already in use", id)
	}
	if s.order == models.NewestFirst {
		s.todos = append([]models.Todo{todo}, s.todos...)
	} else {
		s.todos = append(s.todos, todo)
	}
	s.mu.Unlock()

	saved, err := s.adapter.Create(ctx, todo)
	if err != nil {
		s.mu.Lock()
		s.removeAt(s.indexOf(id))
		s.mu.Unlock()
		return nil, s.writeFailed(ctx, "add", id, err)
	}
	return s.reconcile(todo, saved), nil
}

// Toggle flips completed on the todo with id. Unknown ids are a no-op.
func (s *Store) Toggle(ctx context.Context, id string) error {
	return s.update(ctx, "toggle", id, func(t models.Todo) models.TodoPatch {
		completed := !t.Completed
		return models.TodoPatch{Completed: &completed}
	})
}

// Edit replaces the text of the todo with id. Empty text and unknown ids are no-ops.
func (s *Store) Edit(ctx context.Context, id, text string) error {
	text, ok := models.NormalizeText(text)
	if !ok {
		s.log.DebugContext(ctx, "Ignoring edit with empty text", "id", id)
		return nil
	}
	return s.update(ctx, "edit", id, func(models.Todo) models.TodoPatch {
		return models.TodoPatch{Text: &text}
	})
}

func (s *Store) update(ctx context.Context, op, id string, change func(models.Todo) models.TodoPatch) error {
	release, err := s.beginRecord(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "Ignoring "+op+" of unknown todo", "id", id)
		return nil
	}
	prev := s.todos[i]
	patch := change(prev)
	patch.UpdatedAt = s.now()
	next := patch.Apply(prev)
	patch.UpdatedAt = next.UpdatedAt
	s.todos[i] = next
	s.mu.Unlock()

	saved, err := s.adapter.Update(ctx, id, patch)
	if err != nil {
		s.mu.Lock()
		if j := s.indexOf(id); j >= 0 {
			s.todos[j] = prev
		}
		s.mu.Unlock()
		return s.writeFailed(ctx, op, id, err)
	}
	s.reconcile(next, saved)
	return nil
}

// Delete removes the todo with id. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	release, err := s.beginRecord(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "Ignoring delete of unknown todo", "id", id)
		return nil
	}
	prev := s.todos[i]
	s.removeAt(i)
	s.mu.Unlock()

	if err := s.adapter.Delete(ctx, id); err != nil {
		s.mu.Lock()
		s.insertAt(min(i, len(s.todos)), prev)
		s.mu.Unlock()
		return s.writeFailed(ctx, "delete", id, err)
	}
	return nil
}

// ClearCompleted removes every completed todo and returns how many were removed.
func (s *Store) ClearCompleted(ctx context.Context) (int, error) {
	release, err := s.beginBulk(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	s.mu.Lock()
	before := s.todos
	kept := make([]models.Todo, 0, len(before))
	for _, t := range before {
		if !t.Completed {
			kept = append(kept, t)
		}
	}
	removed := len(before) - len(kept)
	if removed == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	s.todos = kept
	s.mu.Unlock()

	deleted, err := s.adapter.ClearCompleted(ctx)
	if err != nil {
		s.mu.Lock()
		s.todos = before
		s.mu.Unlock()
		return 0, s.writeFailed(ctx, "clear completed", "", err)
	}
	if deleted != removed {
		s.log.DebugContext(ctx, "Adapter cleared a different number of todos", "local", removed, "adapter", deleted)
	}
	return removed, nil
}

// ToggleAll completes every todo, or un-completes all of them when every todo
// is already completed.
func (s *Store) ToggleAll(ctx context.Context) error {
	release, err := s.beginBulk(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	if len(s.todos) == 0 {
		s.mu.Unlock()
		return nil
	}
	before := s.todos
	target := !allCompleted(before)
	now := s.now()
	next := make([]models.Todo, len(before))
	for i, t := range before {
		if t.Completed != target {
			t = models.TodoPatch{Completed: &target, UpdatedAt: now}.Apply(t)
		}
		next[i] = t
	}
	s.todos = next
	s.mu.Unlock()

	saved, err := s.adapter.ToggleAll(ctx, target)
	if err != nil {
		s.mu.Lock()
		s.todos = before
		s.mu.Unlock()
		return s.writeFailed(ctx, "toggle all", "", err)
	}

	byID := make(map[string]models.Todo, len(saved))
	for _, t := range saved {
		byID[t.ID] = t
	}
	s.mu.Lock()
	for i, t := range s.todos {
		if auth, ok := byID[t.ID]; ok && auth.Completed == target {
			s.todos[i] = auth
		}
	}
	s.mu.Unlock()
	return nil
}

// SetFilter changes the view selector. It never touches the adapter.
func (s *Store) SetFilter(f models.Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

func (s *Store) Filter() models.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Todos returns a copy of the full collection in display order.
func (s *Store) Todos() []models.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Todo(nil), s.todos...)
}

// View returns the collection narrowed by the current filter.
func (s *Store) View() []models.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Apply(s.todos)
}

func (s *Store) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ComputeStats(s.todos)
}

// Snapshot returns a consistent view of the Store's state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Todos:  append([]models.Todo(nil), s.todos...),
		View:   s.filter.Apply(s.todos),
		Filter: s.filter,
		Stats:  models.ComputeStats(s.todos),
		Ready:  s.ready,
	}
}

// reconcile swaps the optimistic record for the adapter's copy when the adapter
// returned the same record.
func (s *Store) reconcile(optimistic, saved models.Todo) *models.Todo {
	if saved.ID != optimistic.ID || saved.Text == "" {
		return &optimistic
	}
	if saved.UpdatedAt.Before(saved.CreatedAt) {
		saved.UpdatedAt = saved.CreatedAt
	}
	s.mu.Lock()
	if i := s.indexOf(saved.ID); i >= 0 {
		s.todos[i] = saved
	}
	s.mu.Unlock()
	return &saved
}

func (s *Store) writeFailed(ctx context.Context, op, id string, err error) error {
	s.log.ErrorContext(ctx, "Write failed; change rolled back", "op", op, "id", id, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrWriteFailed, op, err)
}

func (s *Store) indexOf(id string) int {
	for i := range s.todos {
		if s.todos[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	if i < 0 || i >= len(s.todos) {
		return
	}
	next := make([]models.Todo, 0, len(s.todos)-1)
	next = append(next, s.todos[:i]...)
	s.todos = append(next, s.todos[i+1:]...)
}

func (s *Store) insertAt(i int, t models.Todo) {
	next := make([]models.Todo, 0, len(s.todos)+1)
	next = append(next, s.todos[:i]...)
	next = append(next, t)
	s.todos = append(next, s.todos[i:]...)
}

func allCompleted(todos []models.Todo) bool {
	for _, t := range todos {
		if !t.Completed {
			return false
		}
	}
	return true
}
