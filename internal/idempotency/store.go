// Package idempotency replays the stored response of a POST request that is
// retried with the same Idempotency-Key header.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no response is stored under a key
var ErrNotFound = errors.New("idempotency key not found")

// Response is a captured HTTP response
type Response struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"stored_at"`
}

// Store keeps captured responses for a limited time
type Store interface {
	// Get returns the response stored under key or ErrNotFound
	Get(ctx context.Context, key string) (*Response, error)

	// Set stores resp under key for ttl
	Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error

	// Ping checks the backend
	Ping(ctx context.Context) error

	// Close releases the backend
	Close() error
}
