package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/bus"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

func testBus(t *testing.T, cfg Config) *Bus {
	t.Helper()
	log := logging.New("eventbus-test", "error", "text")
	return New(NewMemoryTransport(), cfg, log)
}

func TestPublishAndConsumeDeliversMessage(t *testing.T) {
	b := testBus(t, Config{DequeueTimeout: 50 * time.Millisecond})

	received := make(chan bus.Message, 1)
	b.Subscribe(bus.EventInvoiceUploaded, func(ctx context.Context, msg bus.Message) error {
		received <- msg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.StartConsumers(ctx)
	defer b.Stop()

	msg := bus.NewMessage("m1", bus.EventInvoiceUploaded, map[string]any{"k": "v"}, bus.PriorityNormal, "corr-1", time.Now())
	if err := b.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != "m1" {
			t.Fatalf("expected message m1, got %s", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestDeliveryRetriesThenDeadLetters(t *testing.T) {
	b := testBus(t, Config{
		DequeueTimeout: 20 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	})

	var mu sync.Mutex
	attempts := 0
	b.Subscribe(bus.EventSystemError, func(ctx context.Context, msg bus.Message) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.StartConsumers(ctx)
	defer b.Stop()

	msg := bus.NewMessage("m2", bus.EventSystemError, nil, bus.PriorityLow, "corr-2", time.Now())
	msg.MaxRetries = 2
	if err := b.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := attempts
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts < 3 {
		t.Fatalf("expected 3 attempts (1 initial + 2 retries), got %d", attempts)
	}

	dlq, err := b.transport.Range(ctx, DLQStream, "", 10)
	if err != nil {
		t.Fatalf("range dlq: %v", err)
	}
	if len(dlq) == 0 {
		t.Fatal("expected message to be dead-lettered")
	}
}

func TestGetStreamReplaysInPublishOrder(t *testing.T) {
	b := testBus(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := bus.NewMessage(string(rune('a'+i)), bus.EventInvoicePaid, nil, bus.PriorityNormal, "", time.Now())
		if err := b.Publish(ctx, msg); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	stream, err := b.GetStream(ctx, bus.EventInvoicePaid, "", 10)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if len(stream) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(stream))
	}
	if stream[0].ID != "a" || stream[2].ID != "c" {
		t.Fatalf("expected publish order a,b,c, got %v", []string{stream[0].ID, stream[1].ID, stream[2].ID})
	}
}
