// Package cache provides pluggable byte-value caches for computed responses.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys with a per-entry TTL.
// A miss is (nil, false, nil); an error means the backend itself failed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NoOp never stores anything.
type NoOp struct{}

func (NoOp) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoOp) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoOp) Delete(context.Context, string) error { return nil }
