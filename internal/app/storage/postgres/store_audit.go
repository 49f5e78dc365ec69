package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/R3E-Network/service_layer/internal/app/domain/audit"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

type auditRow struct {
	ID           string    `db:"id"`
	Type         string    `db:"type"`
	Timestamp    sql.NullTime `db:"timestamp"`
	Actor        string    `db:"actor"`
	TenantID     string    `db:"tenant_id"`
	ResourceType string    `db:"resource_type"`
	ResourceID   string    `db:"resource_id"`
	Action       string    `db:"action"`
	Details      []byte    `db:"details"`
	Metadata     []byte    `db:"metadata"`
	Checksum     string    `db:"checksum"`
}

// Append writes one audit event. Audit events are never updated or
// deleted: the table has no UPDATE/DELETE path from this store.
func (s *Store) Append(ctx context.Context, event audit.Event) (audit.Event, error) {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return audit.Event{}, err
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return audit.Event{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, type, timestamp, actor, tenant_id, resource_type, resource_id,
			action, details, metadata, checksum
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		event.ID, string(event.Type), toNullTime(event.Timestamp), event.Actor, event.TenantID,
		event.ResourceType, event.ResourceID, event.Action, detailsJSON, metadataJSON, event.Checksum,
	)
	if err != nil {
		return audit.Event{}, errors.Wrap(errors.KindTransient, errors.ErrCodeTransientIO, "append audit event", 500, err)
	}
	return event, nil
}

func (s *Store) Get(ctx context.Context, id string) (audit.Event, error) {
	var row auditRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, type, timestamp, actor, tenant_id, resource_type, resource_id,
			action, details, metadata, checksum
		FROM audit_events WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return audit.Event{}, errors.New(errors.KindNotFound, errors.ErrCodeInvoiceNotFound, "audit event "+id+" not found", 404)
	}
	if err != nil {
		return audit.Event{}, err
	}
	return rowToEvent(row)
}

func (s *Store) Query(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var clauses []string
	var args []any
	add := func(column string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, q.TenantID)
	clauses = append(clauses, "tenant_id = $1")
	if q.Type != "" {
		add("type", string(q.Type))
	}
	if q.Actor != "" {
		add("actor", q.Actor)
	}
	if q.ResourceType != "" {
		add("resource_type", q.ResourceType)
	}
	if q.ResourceID != "" {
		add("resource_id", q.ResourceID)
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	args = append(args, limit)

	query := "SELECT id, type, timestamp, actor, tenant_id, resource_type, resource_id, action, details, metadata, checksum FROM audit_events WHERE " +
		strings.Join(clauses, " AND ") +
		fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]audit.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := rowToEvent(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func rowToEvent(row auditRow) (audit.Event, error) {
	event := audit.Event{
		ID:           row.ID,
		Type:         audit.EventType(row.Type),
		Timestamp:    fromNullTime(row.Timestamp),
		Actor:        row.Actor,
		TenantID:     row.TenantID,
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID,
		Action:       row.Action,
		Checksum:     row.Checksum,
	}
	if len(row.Details) > 0 {
		if err := json.Unmarshal(row.Details, &event.Details); err != nil {
			return audit.Event{}, err
		}
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &event.Metadata); err != nil {
			return audit.Event{}, err
		}
	}
	return event, nil
}
