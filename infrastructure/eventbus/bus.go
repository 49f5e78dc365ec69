// Package eventbus implements the durable pub/sub bus (spec component C1):
// per-event-type streams for replay, a priority delivery queue, consumer
// groups with exponential-backoff retry, and a dead-letter destination.
// Redis (go-redis/redis/v8) is the durable transport; an in-process
// fallback keeps the pipeline running (with no persistence) when no Redis
// endpoint is configured.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

// Handler processes one message. Handlers must be idempotent: delivery is
// at-least-once, and a redelivered message is indistinguishable from a new
// one except for its RetryCount.
type Handler func(ctx context.Context, msg bus.Message) error

// DLQStream is the reserved subject dead-lettered messages are appended to.
const DLQStream = "__dead_letter__"

// Config tunes retry/backoff and retention. Zero values fall back to the
// spec defaults.
type Config struct {
	// StreamMaxLen caps each per-event-type stream to its newest N entries.
	StreamMaxLen int64
	// InitialBackoff is the delay before the first redelivery attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff between redeliveries.
	MaxBackoff time.Duration
	// DequeueTimeout bounds how long a consumer worker blocks waiting for
	// the next message before checking for shutdown.
	DequeueTimeout time.Duration
	// WorkersPerSubject is the consumer pool size per subscribed event type.
	WorkersPerSubject int
}

func (c Config) withDefaults() Config {
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = 10000
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 2 * time.Second
	}
	if c.WorkersPerSubject <= 0 {
		c.WorkersPerSubject = 4
	}
	return c
}

// allBuckets lists every priority in descending-service order.
var allBuckets = []int{
	int(bus.PriorityCritical),
	int(bus.PriorityHigh),
	int(bus.PriorityNormal),
	int(bus.PriorityLow),
}

// Bus is the durable pub/sub bus. One Bus instance owns one Transport.
type Bus struct {
	transport Transport
	cfg       Config
	log       *logging.Logger

	mu       sync.RWMutex
	handlers map[bus.EventType][]Handler

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRedisBus builds a Bus backed by Redis. The caller owns the client's
// lifecycle (Close it on shutdown).
func NewRedisBus(client *redis.Client, keyPrefix string, cfg Config, log *logging.Logger) *Bus {
	return New(NewRedisTransport(client, keyPrefix), cfg, log)
}

// New builds a Bus over any Transport. Production wiring should prefer a
// RedisTransport; tests and the no-Redis-configured fallback use
// MemoryTransport directly.
func New(transport Transport, cfg Config, log *logging.Logger) *Bus {
	b := &Bus{
		transport: transport,
		cfg:       cfg.withDefaults(),
		log:       log,
		handlers:  make(map[bus.EventType][]Handler),
	}
	if transport.Name() != "redis" {
		log.Warn(context.Background(), "event bus running without a durable transport; messages are not persisted across restarts", map[string]interface{}{
			"transport": transport.Name(),
		})
	}
	return b
}

// Publish appends the message to its event type's stream, then enqueues it
// onto the priority delivery queue. Both writes must commit or Publish
// returns a transient error per spec §4.1.
func (b *Bus) Publish(ctx context.Context, msg bus.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(errors.KindInvalidInput, errors.ErrCodeInvalidDocument, "encode bus message", 422, err)
	}

	if _, err := b.transport.Append(ctx, string(msg.EventType), payload, b.cfg.StreamMaxLen); err != nil {
		return errors.BusUnavailable(err)
	}
	if err := b.transport.Enqueue(ctx, string(msg.EventType), int(msg.Priority), payload); err != nil {
		return errors.BusUnavailable(err)
	}
	return nil
}

// Subscribe registers handler for event type. Every call appends the
// handler; handlers are not deduplicated (Go cannot compare closures), so
// subscribing the same handler twice makes it run twice per message.
func (b *Bus) Subscribe(eventType bus.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// StartConsumers launches WorkersPerSubject goroutines per subscribed event
// type. Messages are dequeued highest priority first, FIFO within a
// priority; with more than one worker per event type, handler invocations
// run concurrently and are not ordered by publish time. Delivery across
// event types is not ordered. Call Stop to shut workers down.
func (b *Bus) StartConsumers(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.mu.RLock()
	defer b.mu.RUnlock()
	for eventType, handlers := range b.handlers {
		for i := 0; i < b.cfg.WorkersPerSubject; i++ {
			b.wg.Add(1)
			go b.consumeLoop(ctx, eventType, handlers)
		}
	}
}

// Stop signals every consumer worker to exit and waits for them.
func (b *Bus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *Bus) consumeLoop(ctx context.Context, eventType bus.EventType, handlers []Handler) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := b.transport.Dequeue(ctx, string(eventType), allBuckets, b.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error(ctx, "event bus dequeue failed", err, map[string]interface{}{"event_type": string(eventType)})
			continue
		}
		if payload == nil {
			continue
		}

		var msg bus.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			b.log.Error(ctx, "event bus discarding undecodable message", err, map[string]interface{}{"event_type": string(eventType)})
			continue
		}

		b.deliver(ctx, msg, handlers)
	}
}

func (b *Bus) deliver(ctx context.Context, msg bus.Message, handlers []Handler) {
	var lastErr error
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		return
	}

	if msg.RetryCount >= msg.MaxRetries {
		b.deadLetter(ctx, msg, lastErr)
		return
	}

	msg.RetryCount++
	delay := backoffFor(msg.RetryCount, b.cfg.InitialBackoff, b.cfg.MaxBackoff)
	b.log.Warn(ctx, "event bus handler failed, scheduling redelivery", map[string]interface{}{
		"event_type":  string(msg.EventType),
		"retry_count": msg.RetryCount,
		"delay":       delay.String(),
		"error":       lastErr.Error(),
	})

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := b.transport.Enqueue(ctx, string(msg.EventType), int(msg.Priority), payload); err != nil {
			b.log.Error(ctx, "event bus failed to re-enqueue message after backoff", err, map[string]interface{}{
				"event_type": string(msg.EventType),
			})
		}
	}()
}

func backoffFor(retryCount int, initial, max time.Duration) time.Duration {
	d := initial
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		d = max
	}
	return d
}

func (b *Bus) deadLetter(ctx context.Context, msg bus.Message, cause error) {
	dl := bus.DeadLetter{Original: msg, Error: cause.Error(), FailedAt: time.Now().UTC()}
	payload, err := json.Marshal(dl)
	if err != nil {
		b.log.Error(ctx, "event bus failed to encode dead letter", err, nil)
		return
	}
	if _, err := b.transport.Append(ctx, DLQStream, payload, b.cfg.StreamMaxLen); err != nil {
		b.log.Error(ctx, "event bus failed to write dead letter", err, map[string]interface{}{"event_type": string(msg.EventType)})
		return
	}
	b.log.Warn(ctx, "event bus dead-lettered message after exhausting retries", map[string]interface{}{
		"event_type":     string(msg.EventType),
		"message_id":     msg.ID,
		"correlation_id": msg.CorrelationID,
		"retry_count":    msg.RetryCount,
	})
}

// GetStream replays persisted messages for eventType in publish order,
// starting strictly after sinceID (empty for the start of the stream).
func (b *Bus) GetStream(ctx context.Context, eventType bus.EventType, sinceID string, count int64) ([]bus.Message, error) {
	entries, err := b.transport.Range(ctx, string(eventType), sinceID, count)
	if err != nil {
		return nil, errors.BusUnavailable(err)
	}
	out := make([]bus.Message, 0, len(entries))
	for _, e := range entries {
		var msg bus.Message
		if err := json.Unmarshal(e.Payload, &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// ReplayDeadLetters re-publishes every DLQ entry after sinceID back onto its
// original event type's queue, resetting RetryCount to zero so the handler
// gets a fresh retry budget. This is the operator-facing recovery path the
// distilled spec's dead_letter operation implies but does not itself name.
func (b *Bus) ReplayDeadLetters(ctx context.Context, sinceID string, count int64) (int, error) {
	entries, err := b.transport.Range(ctx, DLQStream, sinceID, count)
	if err != nil {
		return 0, errors.BusUnavailable(err)
	}

	replayed := 0
	for _, e := range entries {
		var dl bus.DeadLetter
		if err := json.Unmarshal(e.Payload, &dl); err != nil {
			continue
		}
		dl.Original.RetryCount = 0
		if err := b.Publish(ctx, dl.Original); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}
