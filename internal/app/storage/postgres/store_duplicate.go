package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/duplicate"
)

// RegisterByHash records that contentHash maps to invoiceID for a tenant.
// Exact duplicates are detected by looking up every invoice already
// registered under the same hash, so this is an append, not an upsert.
func (s *Store) RegisterByHash(ctx context.Context, tenantID, contentHash, invoiceID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duplicate_hash_index (tenant_id, content_hash, invoice_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, content_hash, invoice_id) DO NOTHING
	`, tenantID, contentHash, invoiceID)
	return err
}

func (s *Store) LookupByHash(ctx context.Context, tenantID, contentHash string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT invoice_id FROM duplicate_hash_index
		WHERE tenant_id = $1 AND content_hash = $2
		ORDER BY invoice_id
	`, tenantID, contentHash)
	return ids, err
}

func (s *Store) RegisterByVendorInvoiceNumber(ctx context.Context, tenantID, vendorKey, invoiceNumber, invoiceID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duplicate_vendor_invoice_index (tenant_id, vendor_key, invoice_number, invoice_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, vendor_key, invoice_number, invoice_id) DO NOTHING
	`, tenantID, strings.ToLower(vendorKey), invoiceNumber, invoiceID)
	return err
}

func (s *Store) LookupByVendorInvoiceNumber(ctx context.Context, tenantID, vendorKey, invoiceNumber string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT invoice_id FROM duplicate_vendor_invoice_index
		WHERE tenant_id = $1 AND vendor_key = $2 AND invoice_number = $3
		ORDER BY invoice_id
	`, tenantID, strings.ToLower(vendorKey), invoiceNumber)
	return ids, err
}

func (s *Store) RegisterRecentByVendor(ctx context.Context, tenantID, vendorKeyLower, invoiceID string, amount float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duplicate_recent_vendor_index (tenant_id, vendor_key, invoice_id, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, vendor_key, invoice_id) DO UPDATE SET
			amount = EXCLUDED.amount, occurred_at = EXCLUDED.occurred_at
	`, tenantID, strings.ToLower(vendorKeyLower), invoiceID, amount, at.UTC())
	return err
}

func (s *Store) LookupRecentByVendor(ctx context.Context, tenantID, vendorKeyLower string, since time.Time) ([]duplicate.RecentInvoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, amount, occurred_at FROM duplicate_recent_vendor_index
		WHERE tenant_id = $1 AND vendor_key = $2 AND occurred_at >= $3
		ORDER BY occurred_at DESC
	`, tenantID, strings.ToLower(vendorKeyLower), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []duplicate.RecentInvoice
	for rows.Next() {
		var r duplicate.RecentInvoice
		if err := rows.Scan(&r.InvoiceID, &r.Amount, &r.At); err != nil {
			return nil, err
		}
		r.At = r.At.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
