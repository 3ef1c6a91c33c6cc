// Package kv provides the durable key-value locations the local adapter keeps
// its snapshot in.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get for a key that was never written.
	ErrNotFound = errors.New("kv: key not found")
	// ErrConflict is returned by Update when other writers kept changing the key.
	ErrConflict = errors.New("kv: key kept changing during update")
)

// UpdateFunc gets the current value (nil when the key is absent) and returns the
// value to store. It may be called more than once.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a flat byte-valued key-value location.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update is an atomic read-modify-write of key, also against other processes
	// sharing the same store. An error from fn aborts without writing.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}
