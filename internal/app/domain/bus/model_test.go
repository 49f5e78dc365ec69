package bus

import (
	"testing"
	"time"
)

func TestNewMessageDefaultsMaxRetries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := NewMessage("m1", EventInvoiceUploaded, map[string]any{"invoice_id": "inv-1"}, PriorityHigh, "corr-1", now)

	if msg.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default max retries %d, got %d", DefaultMaxRetries, msg.MaxRetries)
	}
	if msg.RetryCount != 0 {
		t.Fatalf("expected retry count 0, got %d", msg.RetryCount)
	}
	if !msg.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp to be preserved")
	}
}
