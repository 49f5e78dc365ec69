// Package slamanager tracks per-invoice SLA deadlines and drives the
// monotone escalation ladder (component C5).
package slamanager

import (
	"context"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/sla"
	"github.com/R3E-Network/service_layer/internal/app/storage"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

// Config holds the tenant-configurable stage deadlines and escalation
// thresholds, all expressed as elapsed-hours-since-creation.
type Config struct {
	ProcessingDeadline time.Duration
	ReviewDeadline     time.Duration
	ApprovalDeadline   time.Duration

	WarningThreshold float64 // fraction of total duration elapsed, default 0.75

	FirstReminderHours   float64
	ManagerEscalationHours float64
	DirectorEscalationHours float64
	MaxReminders         int
}

func DefaultConfig() Config {
	return Config{
		ProcessingDeadline:      24 * time.Hour,
		ReviewDeadline:          48 * time.Hour,
		ApprovalDeadline:        72 * time.Hour,
		WarningThreshold:        0.75,
		FirstReminderHours:      4,
		ManagerEscalationHours:  8,
		DirectorEscalationHours: 24,
		MaxReminders:            3,
	}
}

func (c Config) deadlineFor(stage sla.Stage) time.Duration {
	switch stage {
	case sla.StageReview:
		return c.ReviewDeadline
	case sla.StageApproval:
		return c.ApprovalDeadline
	default:
		return c.ProcessingDeadline
	}
}

// Action is one escalation emitted by NextEscalation.
type Action struct {
	InvoiceID string
	Level     sla.EscalationLevel
	Reason    string
}

// Manager owns SLA record lifecycle and escalation decisions.
type Manager struct {
	store storage.SLAStore
	cfg   Config
	log   *logging.Logger
	now   func() time.Time
}

func New(store storage.SLAStore, cfg Config, log *logging.Logger) *Manager {
	if cfg.ProcessingDeadline == 0 {
		cfg = DefaultConfig()
	}
	return &Manager{store: store, cfg: cfg, log: log, now: time.Now}
}

// Start opens a new SLA timer for an invoice entering stage.
func (m *Manager) Start(ctx context.Context, invoiceID string, stage sla.Stage) (sla.Record, error) {
	now := m.now()
	record := sla.Record{
		InvoiceID:       invoiceID,
		Stage:           stage,
		CreatedAt:       now,
		Deadline:        now.Add(m.cfg.deadlineFor(stage)),
		Status:          sla.StatusOnTrack,
		EscalationLevel: sla.EscalationNone,
	}
	return m.store.Upsert(ctx, record)
}

// Check recomputes and returns the record's current status.
func (m *Manager) Check(ctx context.Context, invoiceID string) (sla.Record, error) {
	record, err := m.store.Get(ctx, invoiceID)
	if err != nil {
		return sla.Record{}, err
	}
	record = m.recompute(record)
	return m.store.Upsert(ctx, record)
}

func (m *Manager) recompute(record sla.Record) sla.Record {
	now := m.now()
	remaining := record.Deadline.Sub(now)
	total := record.Deadline.Sub(record.CreatedAt)

	switch {
	case remaining <= 0:
		if record.Status != sla.StatusBreached {
			record.BreachedAt = now
		}
		record.Status = sla.StatusBreached
	case total > 0 && float64(remaining) <= float64(total)*(1-m.cfg.WarningThreshold):
		record.Status = sla.StatusWarning
	default:
		record.Status = sla.StatusOnTrack
	}
	return record
}

// NextEscalation evaluates the monotone ladder and returns at most one new
// action — nil if no escalation beyond the record's current level applies.
func (m *Manager) NextEscalation(ctx context.Context, invoiceID string) (*Action, error) {
	record, err := m.store.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	record = m.recompute(record)

	elapsedHours := m.now().Sub(record.CreatedAt).Hours()
	target := record.EscalationLevel

	switch {
	case record.Status == sla.StatusBreached:
		target = sla.EscalationExecutive
	case elapsedHours >= m.cfg.DirectorEscalationHours:
		target = sla.EscalationDirector
	case elapsedHours >= m.cfg.ManagerEscalationHours:
		target = sla.EscalationManager
	case elapsedHours >= m.cfg.FirstReminderHours:
		target = sla.EscalationReminder
	}

	var action *Action
	if target != record.EscalationLevel && target.AtLeast(record.EscalationLevel) {
		if target == sla.EscalationReminder {
			if record.ReminderCount >= m.cfg.MaxReminders {
				return nil, nil
			}
			record.ReminderCount++
			record.LastReminderAt = m.now()
		}
		record.EscalationLevel = target
		action = &Action{InvoiceID: invoiceID, Level: target, Reason: reasonFor(target)}
		m.log.Warn(ctx, "sla escalation", map[string]interface{}{
			"invoice_id": invoiceID, "level": string(target), "elapsed_hours": elapsedHours,
		})
	} else if record.EscalationLevel == sla.EscalationReminder && elapsedHours < m.cfg.ManagerEscalationHours &&
		record.ReminderCount < m.cfg.MaxReminders && elapsedHours >= m.cfg.FirstReminderHours*float64(record.ReminderCount+1) {
		record.ReminderCount++
		record.LastReminderAt = m.now()
		action = &Action{InvoiceID: invoiceID, Level: sla.EscalationReminder, Reason: "repeat reminder"}
	}

	if _, err := m.store.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return action, nil
}

func reasonFor(level sla.EscalationLevel) string {
	switch level {
	case sla.EscalationExecutive:
		return "sla breached"
	case sla.EscalationDirector:
		return "elapsed time crossed the director escalation threshold"
	case sla.EscalationManager:
		return "elapsed time crossed the manager escalation threshold"
	case sla.EscalationReminder:
		return "elapsed time crossed the first reminder threshold"
	default:
		return ""
	}
}

// Complete removes an invoice's SLA record and summarizes its lifetime.
func (m *Manager) Complete(ctx context.Context, invoiceID string) (sla.CompletionSummary, error) {
	record, err := m.store.Get(ctx, invoiceID)
	if err != nil {
		return sla.CompletionSummary{}, err
	}
	record = m.recompute(record)

	summary := sla.CompletionSummary{
		InvoiceID:            invoiceID,
		ProcessingTime:       m.now().Sub(record.CreatedAt),
		WasBreached:          record.Status == sla.StatusBreached,
		FinalEscalationLevel: record.EscalationLevel,
		ReminderCount:        record.ReminderCount,
	}
	if err := m.store.Delete(ctx, invoiceID); err != nil {
		return sla.CompletionSummary{}, err
	}
	return summary, nil
}

// AtRisk lists every active record currently in WARNING or BREACHED status.
func (m *Manager) AtRisk(ctx context.Context, tenantID string) ([]sla.Record, error) {
	records, err := m.store.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var atRisk []sla.Record
	for _, r := range records {
		r = m.recompute(r)
		if r.Status == sla.StatusWarning || r.Status == sla.StatusBreached {
			atRisk = append(atRisk, r)
		}
	}
	return atRisk, nil
}

// Stats summarizes the active population by status and escalation level.
type Stats struct {
	Total     int
	OnTrack   int
	Warning   int
	Breached  int
	ByLevel   map[sla.EscalationLevel]int
}

func (m *Manager) Stats(ctx context.Context, tenantID string) (Stats, error) {
	records, err := m.store.ListActive(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByLevel: make(map[sla.EscalationLevel]int)}
	for _, r := range records {
		r = m.recompute(r)
		stats.Total++
		switch r.Status {
		case sla.StatusWarning:
			stats.Warning++
		case sla.StatusBreached:
			stats.Breached++
		default:
			stats.OnTrack++
		}
		stats.ByLevel[r.EscalationLevel]++
	}
	return stats, nil
}

// Sweep runs NextEscalation across every active record for tenantID and
// returns the actions produced; the cron job calls this on a fixed period
// instead of waiting for individual check/next_escalation calls per spec's
// periodic-sweep supplement.
func (m *Manager) Sweep(ctx context.Context, tenantID string) ([]Action, error) {
	records, err := m.store.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var actions []Action
	for _, r := range records {
		action, err := m.NextEscalation(ctx, r.InvoiceID)
		if err != nil {
			m.log.Error(ctx, "sla sweep failed for invoice", err, map[string]interface{}{"invoice_id": r.InvoiceID})
			continue
		}
		if action != nil {
			actions = append(actions, *action)
		}
	}
	return actions, nil
}
