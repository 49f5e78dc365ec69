package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryTransport is the in-process fallback used when no Redis endpoint is
// configured. It has no durability across restarts; Bus logs loudly when it
// falls back to this transport so the degraded mode is never silent.
type MemoryTransport struct {
	mu      sync.Mutex
	streams map[string][]Entry
	queues  map[string]map[int][][]byte
	seq     int64
	signal  chan struct{}
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		streams: make(map[string][]Entry),
		queues:  make(map[string]map[int][][]byte),
		signal:  make(chan struct{}, 1),
	}
}

func (t *MemoryTransport) Name() string { return "memory" }

func (t *MemoryTransport) Append(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	id := fmt.Sprintf("%d-0", t.seq)
	entries := append(t.streams[stream], Entry{ID: id, Payload: payload})
	if maxLen > 0 && int64(len(entries)) > maxLen {
		entries = entries[int64(len(entries))-maxLen:]
	}
	t.streams[stream] = entries
	return id, nil
}

func (t *MemoryTransport) Range(ctx context.Context, stream string, sinceID string, count int64) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.streams[stream]
	start := 0
	if sinceID != "" {
		for i, e := range entries {
			if e.ID == sinceID {
				start = i + 1
				break
			}
		}
	}
	end := len(entries)
	if count > 0 && int64(end-start) > count {
		end = start + int(count)
	}
	if start >= end {
		return nil, nil
	}
	out := make([]Entry, end-start)
	copy(out, entries[start:end])
	return out, nil
}

func (t *MemoryTransport) Enqueue(ctx context.Context, subject string, bucket int, payload []byte) error {
	t.mu.Lock()
	if t.queues[subject] == nil {
		t.queues[subject] = make(map[int][][]byte)
	}
	t.queues[subject][bucket] = append(t.queues[subject][bucket], payload)
	t.mu.Unlock()

	select {
	case t.signal <- struct{}{}:
	default:
	}
	return nil
}

func (t *MemoryTransport) Dequeue(ctx context.Context, subject string, buckets []int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	ordered := append([]int(nil), buckets...)
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))

	for {
		if payload, ok := t.popOne(subject, ordered); ok {
			return payload, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.signal:
		case <-time.After(wait):
		}
	}
}

func (t *MemoryTransport) popOne(subject string, orderedBuckets []int) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byBucket := t.queues[subject]
	for _, b := range orderedBuckets {
		items := byBucket[b]
		if len(items) == 0 {
			continue
		}
		payload := items[0]
		byBucket[b] = items[1:]
		return payload, true
	}
	return nil, false
}
