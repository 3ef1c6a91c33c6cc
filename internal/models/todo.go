package models

import (
	"fmt"
	"strings"
	"time"
)

// Todo represents a todo item.
type Todo struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TodoPatch is a partial update (PUT body). Nil fields are left unchanged.
type TodoPatch struct {
	Text      *string   `json:"text,omitempty"`
	Completed *bool     `json:"completed,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Apply returns a copy of t with the patch applied. updatedAt never moves before createdAt.
func (p TodoPatch) Apply(t Todo) Todo {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	t.UpdatedAt = p.UpdatedAt
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}
	return t
}

// NormalizeText trims text. ok is false when nothing remains.
func NormalizeText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	return text, text != ""
}

// Filter selects a subset of the collection for display.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter accepts all, active and completed (case-insensitive). Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterCompleted:
		return f, nil
	default:
		return FilterAll, fmt.Errorf("unknown filter %q", s)
	}
}

// Match reports whether t belongs in the filtered view.
func (f Filter) Match(t Todo) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Apply returns the matching todos in their original order.
func (f Filter) Apply(todos []Todo) []Todo {
	out := make([]Todo, 0, len(todos))
	for _, t := range todos {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Stats are derived counts over a collection.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

func ComputeStats(todos []Todo) Stats {
	s := Stats{Total: len(todos)}
	for _, t := range todos {
		if t.Completed {
			s.Completed++
		}
	}
	s.Active = s.Total - s.Completed
	return s
}

// Ordering is the display order an adapter keeps its collection in.
type Ordering int

const (
	// InsertionOrder appends new todos (local variant).
	InsertionOrder Ordering = iota
	// NewestFirst prepends new todos (networked variant).
	NewestFirst
)

func (o Ordering) String() string {
	if o == NewestFirst {
		return "newest-first"
	}
	return "insertion"
}

// TodoEvent is the change-feed payload published to Kafka after a successful write.
type TodoEvent struct {
	Action     string    `json:"action"` // created, updated, deleted, cleared, toggled_all
	ID         string    `json:"id,omitempty"`
	Todo       *Todo     `json:"todo,omitempty"`
	Count      int       `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

const (
	EventCreated    = "created"
	EventUpdated    = "updated"
	EventDeleted    = "deleted"
	EventCleared    = "cleared"
	EventToggledAll = "toggled_all"
)
