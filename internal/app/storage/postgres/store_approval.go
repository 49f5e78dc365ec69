package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

type approvalRow struct {
	ID           string       `db:"id"`
	InvoiceID    string       `db:"invoice_id"`
	TenantID     string       `db:"tenant_id"`
	Status       string       `db:"status"`
	Priority     string       `db:"priority"`
	AssignedTo   string       `db:"assigned_to"`
	AssignedRole string       `db:"assigned_role"`
	DueDate      sql.NullTime `db:"due_date"`
	SLAStatus    string       `db:"sla_status"`
	Action       string       `db:"action"`
	DecisionActor string      `db:"decision_actor"`
	DecisionAt   sql.NullTime `db:"decision_at"`
	Comments     string       `db:"comments"`
	DelegatedTo  string       `db:"delegated_to"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (s *Store) Create(ctx context.Context, task approval.Task) (approval.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_tasks (
			id, invoice_id, tenant_id, status, priority, assigned_to, assigned_role,
			due_date, sla_status, action, decision_actor, decision_at, comments,
			delegated_to, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		task.ID, task.InvoiceID, task.TenantID, string(task.Status), string(task.Priority),
		task.AssignedTo, task.AssignedRole, toNullTime(task.DueDate), string(task.SLAStatus),
		task.Action, task.DecisionActor, toNullTime(task.DecisionAt), task.Comments,
		task.DelegatedTo, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return approval.Task{}, errors.Wrap(errors.KindTransient, errors.ErrCodeTransientIO, "create approval task", 500, err)
	}
	return task, nil
}

func (s *Store) Update(ctx context.Context, task approval.Task) (approval.Task, error) {
	task.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE approval_tasks SET
			status = $2, priority = $3, assigned_to = $4, assigned_role = $5, due_date = $6,
			sla_status = $7, action = $8, decision_actor = $9, decision_at = $10, comments = $11,
			delegated_to = $12, updated_at = $13
		WHERE id = $1
	`,
		task.ID, string(task.Status), string(task.Priority), task.AssignedTo, task.AssignedRole,
		toNullTime(task.DueDate), string(task.SLAStatus), task.Action, task.DecisionActor,
		toNullTime(task.DecisionAt), task.Comments, task.DelegatedTo, task.UpdatedAt,
	)
	if err != nil {
		return approval.Task{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return approval.Task{}, errors.TaskNotFound(task.ID)
	}
	return task, nil
}

func (s *Store) Get(ctx context.Context, id string) (approval.Task, error) {
	var row approvalRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, invoice_id, tenant_id, status, priority, assigned_to, assigned_role,
			due_date, sla_status, action, decision_actor, decision_at, comments,
			delegated_to, created_at, updated_at
		FROM approval_tasks WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return approval.Task{}, errors.TaskNotFound(id)
	}
	if err != nil {
		return approval.Task{}, err
	}
	return rowToTask(row), nil
}

func (s *Store) GetPendingForInvoice(ctx context.Context, invoiceID string) (*approval.Task, error) {
	var row approvalRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, invoice_id, tenant_id, status, priority, assigned_to, assigned_role,
			due_date, sla_status, action, decision_actor, decision_at, comments,
			delegated_to, created_at, updated_at
		FROM approval_tasks WHERE invoice_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1
	`, invoiceID, string(approval.StatusPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	task := rowToTask(row)
	return &task, nil
}

func (s *Store) ListByStatus(ctx context.Context, tenantID string, status approval.Status, limit int) ([]approval.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []approvalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, invoice_id, tenant_id, status, priority, assigned_to, assigned_role,
			due_date, sla_status, action, decision_actor, decision_at, comments,
			delegated_to, created_at, updated_at
		FROM approval_tasks
		WHERE tenant_id = $1 AND status = $2
		ORDER BY due_date
		LIMIT $3
	`, tenantID, string(status), limit)
	if err != nil {
		return nil, err
	}
	out := make([]approval.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToTask(row))
	}
	return out, nil
}

func rowToTask(row approvalRow) approval.Task {
	return approval.Task{
		ID:            row.ID,
		InvoiceID:     row.InvoiceID,
		TenantID:      row.TenantID,
		Status:        approval.Status(row.Status),
		Priority:      approval.Priority(row.Priority),
		AssignedTo:    row.AssignedTo,
		AssignedRole:  row.AssignedRole,
		DueDate:       fromNullTime(row.DueDate),
		SLAStatus:     approval.SLAStatus(row.SLAStatus),
		Action:        row.Action,
		DecisionActor: row.DecisionActor,
		DecisionAt:    fromNullTime(row.DecisionAt),
		Comments:      row.Comments,
		DelegatedTo:   row.DelegatedTo,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
