package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

const todoColumns = `id, text, completed, created_at, updated_at`

// Postgres stores todos in the todos table (see internal/database/migrations).
type Postgres struct {
	db *sql.DB
}

var _ TodoRepository = (*Postgres)(nil)

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(s scanner) (models.Todo, error) {
	var t models.Todo
	err := s.Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (p *Postgres) List(ctx context.Context) ([]models.Todo, error) {
	return p.list(ctx, p.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (p *Postgres) list(ctx context.Context, q querier) ([]models.Todo, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos ORDER BY created_at DESC, id`)
	if err != nil {
		logger.Error(ctx, "Repository List failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	todos := []models.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			logger.Error(ctx, "Repository scan todo failed", "error", err)
			return nil, err
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, id string) (models.Todo, error) {
	t, err := scanTodo(p.db.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Todo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

func (p *Postgres) Create(ctx context.Context, todo models.Todo) (models.Todo, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO todos (`+todoColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		todo.ID, todo.Text, todo.Completed, todo.CreatedAt, todo.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Todo{}, fmt.Errorf("%w: %s", ErrDuplicate, todo.ID)
		}
		logger.Error(ctx, "Repository Create failed", "error", err, "id", todo.ID)
		return models.Todo{}, err
	}
	return todo, nil
}

// Update locks the row so concurrent partial updates do not overwrite each other.
func (p *Postgres) Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Todo{}, err
	}
	defer tx.Rollback()

	current, err := scanTodo(tx.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Todo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Todo{}, err
	}
	updated := applyPatch(current, patch, time.Now())
	if _, err := tx.ExecContext(ctx,
		`UPDATE todos SET text = $1, completed = $2, updated_at = $3 WHERE id = $4`,
		updated.Text, updated.Completed, updated.UpdatedAt, id); err != nil {
		logger.Error(ctx, "Repository Update failed", "error", err, "id", id)
		return models.Todo{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Todo{}, err
	}
	return updated, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		logger.Error(ctx, "Repository Delete failed", "error", err, "id", id)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) DeleteCompleted(ctx context.Context) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM todos WHERE completed`)
	if err != nil {
		logger.Error(ctx, "Repository DeleteCompleted failed", "error", err)
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) SetAllCompleted(ctx context.Context, completed bool) ([]models.Todo, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`UPDATE todos SET completed = $1, updated_at = GREATEST($2, created_at) WHERE completed <> $1`,
		completed, time.Now()); err != nil {
		logger.Error(ctx, "Repository SetAllCompleted failed", "error", err)
		return nil, err
	}
	todos, err := p.list(ctx, tx)
	if err != nil {
		return nil, err
	}
	return todos, tx.Commit()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close(context.Context) error {
	return p.db.Close()
}
