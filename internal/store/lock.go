package store

import (
	"context"
	"sync"
)

// recordLocks hands out per-id locks in invocation order. A caller queues
// behind whoever asked for the same id before it.
type recordLocks struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func (l *recordLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	if l.tails == nil {
		l.tails = make(map[string]chan struct{})
	}
	prev := l.tails[id]
	mine := make(chan struct{})
	l.tails[id] = mine
	l.mu.Unlock()

	release := func() {
		close(mine)
		l.mu.Lock()
		if l.tails[id] == mine {
			delete(l.tails, id)
		}
		l.mu.Unlock()
	}

	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		// Later callers are chained on mine; hand over only once prev is done.
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}
