// Package cache holds computed query payloads for a bounded time.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value store with per-entry expiry. A Get on a missing or
// expired key returns ok=false and a nil error; an error means the backend
// could not be reached.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Noop never stores anything. It stands in when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
