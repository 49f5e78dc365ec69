package slamanager

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/sla"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/internal/app/storage/memory"
)

func testManager(t *testing.T) (*Manager, func(time.Time)) {
	t.Helper()
	store := memory.NewSLAStore()
	log := logging.New("sla-test", "error", "text")
	m := New(store, DefaultConfig(), log)
	var current time.Time
	m.now = func() time.Time { return current }
	return m, func(tm time.Time) { current = tm }
}

func TestCheckOnTrackImmediatelyAfterStart(t *testing.T) {
	m, setNow := testManager(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setNow(start)

	if _, err := m.Start(context.Background(), "inv-1", sla.StageProcessing); err != nil {
		t.Fatalf("start: %v", err)
	}
	record, err := m.Check(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if record.Status != sla.StatusOnTrack {
		t.Fatalf("expected ON_TRACK, got %s", record.Status)
	}
}

func TestCheckTransitionsToWarningPastThreshold(t *testing.T) {
	m, setNow := testManager(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setNow(start)
	if _, err := m.Start(context.Background(), "inv-1", sla.StageProcessing); err != nil {
		t.Fatalf("start: %v", err)
	}

	setNow(start.Add(19 * time.Hour)) // processing deadline 24h, warn at 75% = 18h
	record, err := m.Check(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if record.Status != sla.StatusWarning {
		t.Fatalf("expected WARNING, got %s", record.Status)
	}
}

func TestCheckBreachesPastDeadlineAndSetsBreachedAt(t *testing.T) {
	m, setNow := testManager(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setNow(start)
	if _, err := m.Start(context.Background(), "inv-1", sla.StageProcessing); err != nil {
		t.Fatalf("start: %v", err)
	}

	setNow(start.Add(25 * time.Hour))
	record, err := m.Check(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if record.Status != sla.StatusBreached {
		t.Fatalf("expected BREACHED, got %s", record.Status)
	}
	if record.BreachedAt.IsZero() {
		t.Fatalf("expected BreachedAt to be set")
	}
}

func TestNextEscalationLadderIsMonotone(t *testing.T) {
	m, setNow := testManager(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setNow(start)
	if _, err := m.Start(context.Background(), "inv-1", sla.StageApproval); err != nil {
		t.Fatalf("start: %v", err)
	}

	setNow(start.Add(5 * time.Hour))
	action, err := m.NextEscalation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if action == nil || action.Level != sla.EscalationReminder {
		t.Fatalf("expected reminder escalation, got %+v", action)
	}

	setNow(start.Add(9 * time.Hour))
	action, err = m.NextEscalation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if action == nil || action.Level != sla.EscalationManager {
		t.Fatalf("expected manager escalation, got %+v", action)
	}

	setNow(start.Add(80 * time.Hour)) // past the 72h approval deadline -> breached
	action, err = m.NextEscalation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if action == nil || action.Level != sla.EscalationExecutive {
		t.Fatalf("expected executive escalation on breach, got %+v", action)
	}
}

func TestNextEscalationNeverDowngrades(t *testing.T) {
	m, setNow := testManager(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setNow(start)
	if _, err := m.Start(context.Background(), "inv-1", sla.StageProcessing); err != nil {
		t.Fatalf("start: %v", err)
	}

	setNow(start.Add(9 * time.Hour))
	if _, err := m.NextEscalation(context.Background(), "inv-1"); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	record, err := m.Check(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if record.EscalationLevel != sla.EscalationManager {
		t.Fatalf("expected manager level, got %s", record.EscalationLevel)
	}

	setNow(start.Add(6 * time.Hour)) // time moving backwards relative to elapsed hours check
	action, err := m.NextEscalation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if action != nil {
		t.Fatalf("expected no downgrade action, got %+v", action)
	}
}

func TestCompleteRemovesRecordAndSummarizes(t *testing.T) {
	m, setNow := testManager(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	setNow(start)
	if _, err := m.Start(context.Background(), "inv-1", sla.StageProcessing); err != nil {
		t.Fatalf("start: %v", err)
	}

	setNow(start.Add(2 * time.Hour))
	summary, err := m.Complete(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if summary.WasBreached {
		t.Fatalf("expected not breached")
	}
	if summary.ProcessingTime != 2*time.Hour {
		t.Fatalf("expected 2h processing time, got %v", summary.ProcessingTime)
	}

	if _, err := m.Check(context.Background(), "inv-1"); err == nil {
		t.Fatalf("expected record to be gone after Complete")
	}
}
