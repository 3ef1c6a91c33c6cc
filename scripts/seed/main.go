// Seed adds demo todos to the configured repository. Run from project root: go run ./scripts/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"todo-sync/internal/config"
	"todo-sync/internal/models"
	"todo-sync/internal/repository"
)

func main() {
	_ = config.LoadEnvFile(".env")

	ctx := context.Background()
	repo, err := repository.Open(ctx, config.Get())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Repository not available:", err)
		os.Exit(1)
	}
	defer repo.Close(ctx)

	const total = 1_000
	start := time.Now()
	base := start.Add(-total * time.Minute)

	for i := 0; i < total; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		todo := models.Todo{
			ID:        uuid.NewString(),
			Text:      fmt.Sprintf("Todo %d", i+1),
			Completed: i%3 == 0,
			CreatedAt: at,
			UpdatedAt: at,
		}
		if _, err := repo.Create(ctx, todo); err != nil {
			fmt.Fprintln(os.Stderr, "Insert failed:", err)
			os.Exit(1)
		}
		if (i+1)%100 == 0 {
			fmt.Printf("\rInserted %d / %d", i+1, total)
		}
	}

	fmt.Printf("\nDone: %d todos in %v\n", total, time.Since(start))
}
