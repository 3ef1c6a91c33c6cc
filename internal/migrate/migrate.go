// Package migrate copies a local collection to the remote API.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"todo-sync/internal/client"
	"todo-sync/internal/local"
	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

// Source is where todos are copied from. The source is never modified.
type Source interface {
	Load(ctx context.Context) ([]models.Todo, error)
}

// Target receives the copies.
type Target interface {
	Load(ctx context.Context) ([]models.Todo, error)
	Create(ctx context.Context, todo models.Todo) (models.Todo, error)
}

// Report counts what a run did. Total = Created + Skipped + Failed.
type Report struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (r Report) String() string {
	return fmt.Sprintf("%d todos: %d created, %d already present, %d failed", r.Total, r.Created, r.Skipped, r.Failed)
}

// Run copies every todo in from that to does not already have. Running it again
// creates nothing new. Per-record failures are counted, not returned; the error
// is for loads that fail outright.
func Run(ctx context.Context, from Source, to Target) (Report, error) {
	var report Report
	todos, err := from.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load source: %w", err)
	}
	existing, err := to.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load target: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		present[t.ID] = struct{}{}
	}

	report.Total = len(todos)
	for _, t := range todos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := present[t.ID]; ok {
			report.Skipped++
			continue
		}
		if _, err := to.Create(ctx, t); err != nil {
			if isDuplicate(err) {
				report.Skipped++
				continue
			}
			report.Failed++
			logger.Warn(ctx, "Migrating todo failed", "id", t.ID, "error", err)
			continue
		}
		present[t.ID] = struct{}{}
		report.Created++
	}
	logger.Info(ctx, "Migration finished", "total", report.Total, "created", report.Created,
		"skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func isDuplicate(err error) bool {
	return client.IsStatus(err, http.StatusConflict) || errors.Is(err, local.ErrDuplicate)
}
