package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

type invoiceRow struct {
	ID                    string          `db:"id"`
	DocumentID            string          `db:"document_id"`
	TenantID              string          `db:"tenant_id"`
	State                 string          `db:"state"`
	VendorID              string          `db:"vendor_id"`
	VendorName            string          `db:"vendor_name"`
	VendorAddress         string          `db:"vendor_address"`
	InvoiceNumber         string          `db:"invoice_number"`
	InvoiceDate           sql.NullTime    `db:"invoice_date"`
	DueDate               sql.NullTime    `db:"due_date"`
	Currency              string          `db:"currency"`
	Subtotal              string          `db:"subtotal"`
	Tax                   string          `db:"tax"`
	Total                 string          `db:"total"`
	PONumber              string          `db:"po_number"`
	RiskScore             float64         `db:"risk_score"`
	ExtractionConfidence  float64         `db:"extraction_confidence"`
	ContentHash           string          `db:"content_hash"`
	Filename              string          `db:"filename"`
	SizeBytes             int64           `db:"size_bytes"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
	CreatedBy             string          `db:"created_by"`
}

// Create inserts a new invoice. Only the scalar header fields are stored in
// the invoices table; line items and anomaly tags are not persisted by this
// store.
func (s *Store) Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, document_id, tenant_id, state, vendor_id, vendor_name, vendor_address,
			invoice_number, invoice_date, due_date, currency, subtotal, tax, total,
			po_number, risk_score, extraction_confidence, content_hash, filename,
			size_bytes, created_at, updated_at, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23
		)
	`,
		inv.ID, inv.DocumentID, inv.TenantID, string(inv.State), inv.VendorID, inv.VendorName, inv.VendorAddress,
		inv.InvoiceNumber, toNullTime(inv.InvoiceDate), toNullTime(inv.DueDate), inv.Currency,
		inv.Subtotal.String(), inv.Tax.String(), inv.Total.String(),
		inv.PONumber, inv.RiskScore, inv.ExtractionConfidence, inv.ContentHash, inv.Filename,
		inv.SizeBytes, inv.CreatedAt, inv.UpdatedAt, inv.CreatedBy,
	)
	if err != nil {
		return invoice.Invoice{}, errors.Wrap(errors.KindTransient, errors.ErrCodeTransientIO, "create invoice", 500, err)
	}
	return inv, nil
}

func (s *Store) Update(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	inv.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET
			state = $2, vendor_id = $3, vendor_name = $4, vendor_address = $5,
			invoice_number = $6, invoice_date = $7, due_date = $8, currency = $9,
			subtotal = $10, tax = $11, total = $12, po_number = $13, risk_score = $14,
			extraction_confidence = $15, updated_at = $16
		WHERE id = $1
	`,
		inv.ID, string(inv.State), inv.VendorID, inv.VendorName, inv.VendorAddress,
		inv.InvoiceNumber, toNullTime(inv.InvoiceDate), toNullTime(inv.DueDate), inv.Currency,
		inv.Subtotal.String(), inv.Tax.String(), inv.Total.String(), inv.PONumber, inv.RiskScore,
		inv.ExtractionConfidence, inv.UpdatedAt,
	)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return invoice.Invoice{}, errors.InvoiceNotFound(inv.ID)
	}
	return inv, nil
}

func (s *Store) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	var row invoiceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, document_id, tenant_id, state, vendor_id, vendor_name, vendor_address,
			invoice_number, invoice_date, due_date, currency, subtotal, tax, total,
			po_number, risk_score, extraction_confidence, content_hash, filename,
			size_bytes, created_at, updated_at, created_by
		FROM invoices WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return invoice.Invoice{}, errors.InvoiceNotFound(id)
	}
	if err != nil {
		return invoice.Invoice{}, err
	}
	return rowToInvoice(row), nil
}

func (s *Store) GetByContentHash(ctx context.Context, tenantID, contentHash string) ([]invoice.Invoice, error) {
	var rows []invoiceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, document_id, tenant_id, state, vendor_id, vendor_name, vendor_address,
			invoice_number, invoice_date, due_date, currency, subtotal, tax, total,
			po_number, risk_score, extraction_confidence, content_hash, filename,
			size_bytes, created_at, updated_at, created_by
		FROM invoices WHERE tenant_id = $1 AND content_hash = $2
		ORDER BY created_at
	`, tenantID, contentHash)
	if err != nil {
		return nil, err
	}
	return rowsToInvoices(rows), nil
}

func (s *Store) List(ctx context.Context, tenantID string, state invoice.State, limit int) ([]invoice.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []invoiceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, document_id, tenant_id, state, vendor_id, vendor_name, vendor_address,
			invoice_number, invoice_date, due_date, currency, subtotal, tax, total,
			po_number, risk_score, extraction_confidence, content_hash, filename,
			size_bytes, created_at, updated_at, created_by
		FROM invoices
		WHERE tenant_id = $1 AND ($2 = '' OR state = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, string(state), limit)
	if err != nil {
		return nil, err
	}
	return rowsToInvoices(rows), nil
}

func rowToInvoice(row invoiceRow) invoice.Invoice {
	inv := invoice.Invoice{
		ID:                   row.ID,
		DocumentID:           row.DocumentID,
		TenantID:             row.TenantID,
		State:                invoice.State(row.State),
		VendorID:             row.VendorID,
		VendorName:           row.VendorName,
		VendorAddress:        row.VendorAddress,
		InvoiceNumber:        row.InvoiceNumber,
		InvoiceDate:          fromNullTime(row.InvoiceDate),
		DueDate:              fromNullTime(row.DueDate),
		Currency:             row.Currency,
		PONumber:             row.PONumber,
		RiskScore:            row.RiskScore,
		ExtractionConfidence: row.ExtractionConfidence,
		ContentHash:          row.ContentHash,
		Filename:             row.Filename,
		SizeBytes:            row.SizeBytes,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
		CreatedBy:            row.CreatedBy,
	}
	inv.Subtotal = parseDecimalOrZero(row.Subtotal)
	inv.Tax = parseDecimalOrZero(row.Tax)
	inv.Total = parseDecimalOrZero(row.Total)
	return inv
}

func rowsToInvoices(rows []invoiceRow) []invoice.Invoice {
	out := make([]invoice.Invoice, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToInvoice(row))
	}
	return out
}
