package migrate

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"todo-sync/internal/client"
	"todo-sync/internal/controller"
	"todo-sync/internal/kv"
	"todo-sync/internal/local"
	"todo-sync/internal/models"
	"todo-sync/internal/repository"
	"todo-sync/internal/routes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seedLocal(t *testing.T, todos ...models.Todo) *local.Adapter {
	t.Helper()
	a := local.New(kv.NewMemory())
	if err := a.Save(context.Background(), todos); err != nil {
		t.Fatal(err)
	}
	return a
}

func todo(id, text string, completed bool) models.Todo {
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return models.Todo{ID: id, Text: text, Completed: completed, CreatedAt: at, UpdatedAt: at}
}

func TestRun_LocalToRemote(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	srv := httptest.NewServer(routes.Router(controller.NewTodos(repo, nil, nil), time.Second))
	defer srv.Close()
	remote := client.New(srv.URL)

	if _, err := repo.Create(ctx, todo("b", "already there", false)); err != nil {
		t.Fatal(err)
	}
	src := seedLocal(t,
		todo("a", "first", false),
		todo("b", "second", true),
		todo("c", "third", true),
		todo("d", "   ", false), // rejected by the server
	)

	report, err := Run(ctx, src, remote)
	if err != nil {
		t.Fatal(err)
	}
	want := Report{Total: 4, Created: 2, Skipped: 1, Failed: 1}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
	if got, _ := repo.Get(ctx, "b"); got.Text != "already there" {
		t.Fatalf("existing remote record overwritten: %+v", got)
	}
	if got, _ := repo.Get(ctx, "c"); !got.Completed || !got.CreatedAt.Equal(todo("c", "", true).CreatedAt) {
		t.Fatalf("fields not carried over: %+v", got)
	}

	again, err := Run(ctx, src, remote)
	if err != nil {
		t.Fatal(err)
	}
	if again.Created != 0 || again.Skipped != 3 {
		t.Fatalf("second run = %+v, want nothing created", again)
	}
	if all, _ := repo.List(ctx); len(all) != 3 {
		t.Fatalf("remote has %d todos, want 3", len(all))
	}

	if kept, _ := src.Load(ctx); len(kept) != 4 {
		t.Fatalf("local backup changed: %d todos", len(kept))
	}
}

type conflictTarget struct{}

func (conflictTarget) Load(context.Context) ([]models.Todo, error) { return nil, nil }
func (conflictTarget) Create(context.Context, models.Todo) (models.Todo, error) {
	return models.Todo{}, &client.APIError{Status: 409, Message: "exists"}
}

func TestRun_ConflictCountsAsSkipped(t *testing.T) {
	report, err := Run(context.Background(), seedLocal(t, todo("a", "x", false)), conflictTarget{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRun_LocalTarget(t *testing.T) {
	ctx := context.Background()
	dst := seedLocal(t, todo("a", "x", false))
	report, err := Run(ctx, seedLocal(t, todo("a", "x", false), todo("b", "y", false)), dst)
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
}

type brokenSource struct{}

func (brokenSource) Load(context.Context) ([]models.Todo, error) { return nil, errors.New("disk gone") }

func TestRun_SourceLoadFails(t *testing.T) {
	if _, err := Run(context.Background(), brokenSource{}, conflictTarget{}); err == nil {
		t.Fatal("expected error")
	}
}
