package main

import (
	"fmt"
	"io"

	"todo-sync/internal/models"
	"todo-sync/internal/store"
)

const shortIDLen = 8

func render(w io.Writer, snap store.Snapshot) {
	if len(snap.View) == 0 {
		if snap.Stats.Total == 0 {
			fmt.Fprintln(w, "Nothing to do.")
		} else {
			fmt.Fprintf(w, "No %s todos.\n", snap.Filter)
		}
	}
	for _, t := range snap.View {
		fmt.Fprintln(w, line(t))
	}
	if snap.Stats.Total > 0 {
		fmt.Fprintf(w, "\n%d %s left", snap.Stats.Active, plural(snap.Stats.Active, "item", "items"))
		if snap.Stats.Completed > 0 {
			fmt.Fprintf(w, ", %d completed", snap.Stats.Completed)
		}
		if snap.Filter != models.FilterAll {
			fmt.Fprintf(w, " (showing %s)", snap.Filter)
		}
		fmt.Fprintln(w)
	}
}

func line(t models.Todo) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}
	id := t.ID
	if len(id) > shortIDLen {
		id = id[:shortIDLen]
	}
	return fmt.Sprintf("%s %s  %s", box, id, t.Text)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
