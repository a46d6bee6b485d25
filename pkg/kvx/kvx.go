// Package kvx is the ephemeral key-value store used for short-lived
// correlation state such as SSO login attempts. Values expire on their own
// and TakeOnce guarantees a value is consumed at most once.
package kvx

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the key is absent, expired or already taken.
var ErrNotFound = errors.New("kvx: key not found")

// Store is implemented by the memory and redis backends.
type Store interface {
	// Put stores value under key for ttl. A zero ttl is rejected.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// TakeOnce atomically reads and deletes key.
	TakeOnce(ctx context.Context, key string) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

var errNoTTL = errors.New("kvx: ttl must be positive")
