package repository

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"todo-sync/internal/models"
)

// setFields returns the $set document of a single-stage pipeline update.
func setFields(t *testing.T, update bson.A) bson.D {
	t.Helper()
	if len(update) != 1 {
		t.Fatalf("expected one pipeline stage, got %d", len(update))
	}
	stage, ok := update[0].(bson.D)
	if !ok || len(stage) != 1 || stage[0].Key != "$set" {
		t.Fatalf("expected a $set stage, got %#v", update[0])
	}
	set, ok := stage[0].Value.(bson.D)
	if !ok {
		t.Fatalf("$set value is %T", stage[0].Value)
	}
	return set
}

func keys(d bson.D) []string {
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.Key
	}
	return out
}

func field(t *testing.T, d bson.D, key string) any {
	t.Helper()
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	t.Fatalf("no %q in %v", key, keys(d))
	return nil
}

func TestPatchUpdate_SetsOnlyPatchedFields(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	text := "$price"
	done := true

	tests := []struct {
		name  string
		patch models.TodoPatch
		want  []string
	}{
		{"text only", models.TodoPatch{Text: &text}, []string{"text", "updatedAt"}},
		{"completed only", models.TodoPatch{Completed: &done}, []string{"completed", "updatedAt"}},
		{"both", models.TodoPatch{Text: &text, Completed: &done}, []string{"text", "completed", "updatedAt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(setFields(t, patchUpdate(tt.patch, now)))
			if len(got) != len(tt.want) {
				t.Fatalf("fields = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("fields = %v, want %v", got, tt.want)
				}
			}
		})
	}

	set := setFields(t, patchUpdate(models.TodoPatch{Text: &text}, now))
	if v, ok := field(t, set, "text").(bson.D); !ok || v[0].Key != "$literal" || v[0].Value != "$price" {
		t.Fatalf("text must be a literal, got %#v", field(t, set, "text"))
	}
}

func TestPatchUpdate_UpdatedAtNeverBeforeCreatedAt(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	for _, p := range []models.TodoPatch{{}, {UpdatedAt: now.Add(-time.Hour)}} {
		stamp, ok := field(t, setFields(t, patchUpdate(p, now)), "updatedAt").(bson.D)
		if !ok || stamp[0].Key != "$max" {
			t.Fatalf("updatedAt = %#v, want a $max against createdAt", stamp)
		}
		args := stamp[0].Value.(bson.A)
		if args[1] != "$createdAt" {
			t.Fatalf("$max args = %#v", args)
		}
	}
}

func TestSetAllUpdate_ClampsToCreatedAt(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	set := setFields(t, setAllUpdate(true, now))
	stamp := field(t, set, "updatedAt").(bson.D)
	args := stamp[0].Value.(bson.A)
	if stamp[0].Key != "$max" || args[0] != now || args[1] != "$createdAt" {
		t.Fatalf("updatedAt = %#v", stamp)
	}
	completed := field(t, set, "completed").(bson.D)
	if completed[0].Key != "$literal" || completed[0].Value != true {
		t.Fatalf("completed = %#v", completed)
	}
}
