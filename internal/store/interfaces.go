// Package store provides the adapters for the two backing stores: the
// durable document store (source of truth) and the volatile cache.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record or key is absent.
var ErrNotFound = errors.New("not found")

// Record is a stored document with its store-assigned id.
type Record struct {
	ID   string
	Data map[string]any
}

// DocumentStore is the durable store adapter contract. Operations
// perform no retries; transport errors surface unmodified.
type DocumentStore interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	GetByID(ctx context.Context, collection, id string) (map[string]any, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	QueryAll(ctx context.Context, collection string) ([]Record, error)
	QueryProjected(ctx context.Context, collection string, fields []string) ([]map[string]any, error)

	// Health supervision hooks.
	Ping(ctx context.Context) error
	Healthy() bool
	Reconnect(ctx context.Context) error
	Close()
}

// Cache is the volatile cache adapter contract. Every failure is
// recoverable; callers treat the cache purely as an accelerator.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Health supervision hooks.
	Ping(ctx context.Context) error
	Healthy() bool
	Reconnect(ctx context.Context) error
	Close() error
}
