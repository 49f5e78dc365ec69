// Package audit implements the append-only, checksum-chained audit logger
// (component C9): monotonically increasing per-day ids, SHA-256 checksums
// over a canonical JSON serialization, query, verification, and compliance
// export.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

const defaultQueryLimit = 100

// Logger owns id generation, checksum computation, and delegation to the
// backing store.
type Logger struct {
	store storage.AuditStore
	now   func() time.Time

	mu      sync.Mutex
	dayKey  string
	counter int
}

func New(store storage.AuditStore) *Logger {
	return &Logger{store: store, now: time.Now}
}

// nextID produces AE-YYYYMMDD-<8-digit-counter>, resetting the counter at
// each UTC day boundary.
func (l *Logger) nextID() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.now().UTC().Format("20060102")
	if day != l.dayKey {
		l.dayKey = day
		l.counter = 0
	}
	l.counter++
	return fmt.Sprintf("AE-%s-%08d", day, l.counter)
}

// Append assigns an id, timestamp, and checksum, then persists event.
func (l *Logger) Append(ctx context.Context, event audit.Event) (audit.Event, error) {
	event.ID = l.nextID()
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	event.Checksum = ""
	checksum, err := checksumOf(event)
	if err != nil {
		return audit.Event{}, err
	}
	event.Checksum = checksum

	return l.store.Append(ctx, event)
}

// Verify recomputes event's checksum over every field but Checksum itself
// and compares.
func Verify(event audit.Event) (bool, error) {
	want := event.Checksum
	event.Checksum = ""
	got, err := checksumOf(event)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// checksumOf computes the SHA-256 hex digest of a canonical (sorted-key,
// UTF-8) JSON serialization of event.
func checksumOf(event audit.Event) (string, error) {
	canonical, err := canonicalJSON(event)
	if err != nil {
		return "", errors.Wrap(errors.KindIntegrityError, errors.ErrCodeChecksumMismatch, "compute audit checksum", 500, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals event to JSON with map keys in the order
// encoding/json already guarantees (sorted) and re-marshals the whole
// struct through a generic map so field order never depends on struct
// declaration order.
func canonicalJSON(event audit.Event) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')

		valJSON, err := marshalValue(m[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func marshalValue(v any) ([]byte, error) {
	if nested, ok := v.(map[string]any); ok {
		return marshalSorted(nested)
	}
	return json.Marshal(v)
}

// Get returns one event by id.
func (l *Logger) Get(ctx context.Context, id string) (audit.Event, error) {
	return l.store.Get(ctx, id)
}

// Query filters and returns events newest-first, capped at q.Limit (or the
// default).
func (l *Logger) Query(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	return l.store.Query(ctx, q)
}

// Export produces a compliance payload for the given query range.
func (l *Logger) Export(ctx context.Context, q audit.Query) (audit.ComplianceExport, error) {
	events, err := l.Query(ctx, q)
	if err != nil {
		return audit.ComplianceExport{}, err
	}
	return audit.ComplianceExport{
		GeneratedAt: l.now(),
		Query:       q,
		EventCount:  len(events),
		Events:      events,
	}, nil
}
