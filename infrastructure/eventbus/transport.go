package eventbus

import (
	"context"
	"time"
)

// Entry is one persisted record in a stream, in publish order.
type Entry struct {
	ID      string
	Payload []byte
}

// Transport is the durability layer a Bus is built on: append-only streams
// keyed by subject (event type or the reserved DLQ subject), plus a blocking
// pop used for priority-ordered delivery.
type Transport interface {
	// Append writes payload to the named stream, trimming to maxLen newest
	// entries, and returns the assigned entry ID.
	Append(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error)

	// Range replays entries in a stream strictly after sinceID (empty means
	// from the beginning), up to count entries.
	Range(ctx context.Context, stream string, sinceID string, count int64) ([]Entry, error)

	// Enqueue pushes payload onto the priority-ordered delivery queue for a
	// subject. Higher bucket values are served first.
	Enqueue(ctx context.Context, subject string, bucket int, payload []byte) error

	// Dequeue blocks up to timeout for the next payload across bucket
	// (highest first), returning (nil, nil) on timeout.
	Dequeue(ctx context.Context, subject string, buckets []int, timeout time.Duration) ([]byte, error)

	// Name identifies the transport for logging ("redis" or "memory").
	Name() string
}
