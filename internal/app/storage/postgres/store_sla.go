package postgres

import (
	"context"
	"database/sql"

	"github.com/R3E-Network/service_layer/internal/app/domain/sla"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

type slaRow struct {
	InvoiceID       string       `db:"invoice_id"`
	Stage           string       `db:"stage"`
	CreatedAt       sql.NullTime `db:"created_at"`
	Deadline        sql.NullTime `db:"deadline"`
	Status          string       `db:"status"`
	EscalationLevel string       `db:"escalation_level"`
	ReminderCount   int          `db:"reminder_count"`
	LastReminderAt  sql.NullTime `db:"last_reminder_at"`
	BreachedAt      sql.NullTime `db:"breached_at"`
}

func (s *Store) Upsert(ctx context.Context, record sla.Record) (sla.Record, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_records (
			invoice_id, stage, created_at, deadline, status, escalation_level,
			reminder_count, last_reminder_at, breached_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (invoice_id) DO UPDATE SET
			stage = EXCLUDED.stage, deadline = EXCLUDED.deadline, status = EXCLUDED.status,
			escalation_level = EXCLUDED.escalation_level, reminder_count = EXCLUDED.reminder_count,
			last_reminder_at = EXCLUDED.last_reminder_at, breached_at = EXCLUDED.breached_at
	`,
		record.InvoiceID, string(record.Stage), toNullTime(record.CreatedAt), toNullTime(record.Deadline),
		string(record.Status), string(record.EscalationLevel), record.ReminderCount,
		toNullTime(record.LastReminderAt), toNullTime(record.BreachedAt),
	)
	if err != nil {
		return sla.Record{}, errors.Wrap(errors.KindTransient, errors.ErrCodeTransientIO, "upsert sla record", 500, err)
	}
	return record, nil
}

func (s *Store) Get(ctx context.Context, invoiceID string) (sla.Record, error) {
	var row slaRow
	err := s.db.GetContext(ctx, &row, `
		SELECT invoice_id, stage, created_at, deadline, status, escalation_level,
			reminder_count, last_reminder_at, breached_at
		FROM sla_records WHERE invoice_id = $1
	`, invoiceID)
	if err == sql.ErrNoRows {
		return sla.Record{}, errors.New(errors.KindNotFound, errors.ErrCodeInvoiceNotFound, "sla record not found for invoice "+invoiceID, 404)
	}
	if err != nil {
		return sla.Record{}, err
	}
	return rowToSLA(row), nil
}

func (s *Store) Delete(ctx context.Context, invoiceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sla_records WHERE invoice_id = $1`, invoiceID)
	return err
}

// ListActive returns every SLA record not yet expired. Records carry no
// tenant column of their own (sla.Record is scoped by invoice, and the
// invoice row is the tenant boundary), so tenantID is accepted for
// interface symmetry with the other stores but is not used to filter here;
// a caller needing tenant isolation joins against the invoices table.
func (s *Store) ListActive(ctx context.Context, tenantID string) ([]sla.Record, error) {
	var rows []slaRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT invoice_id, stage, created_at, deadline, status, escalation_level,
			reminder_count, last_reminder_at, breached_at
		FROM sla_records
		WHERE status != $1
		ORDER BY deadline
	`, string(sla.StatusExpired))
	if err != nil {
		return nil, err
	}
	out := make([]sla.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToSLA(row))
	}
	return out, nil
}

func rowToSLA(row slaRow) sla.Record {
	return sla.Record{
		InvoiceID:       row.InvoiceID,
		Stage:           sla.Stage(row.Stage),
		CreatedAt:       fromNullTime(row.CreatedAt),
		Deadline:        fromNullTime(row.Deadline),
		Status:          sla.Status(row.Status),
		EscalationLevel: sla.EscalationLevel(row.EscalationLevel),
		ReminderCount:   row.ReminderCount,
		LastReminderAt:  fromNullTime(row.LastReminderAt),
		BreachedAt:      fromNullTime(row.BreachedAt),
	}
}
