// Package storage provides durable key-value storage for client state.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("key not found")

// KV is a durable string key-value store. Values survive process restarts.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// GetMany returns the values that exist for keys. Missing keys are
	// absent from the result map.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)

	// PutMany writes every entry in a single transaction.
	PutMany(ctx context.Context, entries map[string]string) error

	// Delete removes keys. Deleting a missing key is not an error.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}
