package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

type workflowRow struct {
	InvoiceID  string    `db:"invoice_id"`
	State      string    `db:"state"`
	History    []byte    `db:"history"`
	AssignedTo string    `db:"assigned_to"`
	DueDate    sql.NullTime `db:"due_date"`
}

func (s *Store) Get(ctx context.Context, invoiceID string) (workflow.Record, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row, `
		SELECT invoice_id, state, history, assigned_to, due_date
		FROM workflow_records WHERE invoice_id = $1
	`, invoiceID)
	if err == sql.ErrNoRows {
		return workflow.Record{}, errors.WorkflowNotFound(invoiceID)
	}
	if err != nil {
		return workflow.Record{}, err
	}

	var history []workflow.StateTransition
	if len(row.History) > 0 {
		if err := json.Unmarshal(row.History, &history); err != nil {
			return workflow.Record{}, errors.Wrap(errors.KindIntegrityError, errors.ErrCodeChecksumMismatch, "decode workflow history", 500, err)
		}
	}
	return workflow.Record{
		InvoiceID:  row.InvoiceID,
		State:      invoice.State(row.State),
		History:    history,
		AssignedTo: row.AssignedTo,
		DueDate:    fromNullTime(row.DueDate),
	}, nil
}

func (s *Store) Save(ctx context.Context, record workflow.Record) (workflow.Record, error) {
	historyJSON, err := json.Marshal(record.History)
	if err != nil {
		return workflow.Record{}, err
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_records (invoice_id, state, history, assigned_to, due_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (invoice_id) DO UPDATE SET
			state = EXCLUDED.state, history = EXCLUDED.history, assigned_to = EXCLUDED.assigned_to,
			due_date = EXCLUDED.due_date, updated_at = EXCLUDED.updated_at
	`, record.InvoiceID, string(record.State), historyJSON, record.AssignedTo, toNullTime(record.DueDate), now)
	if err != nil {
		return workflow.Record{}, errors.Wrap(errors.KindTransient, errors.ErrCodeTransientIO, "save workflow record", 500, err)
	}
	return record, nil
}
