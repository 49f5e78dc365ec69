package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/pomatch"
)

type poRow struct {
	ID         string    `db:"id"`
	TenantID   string    `db:"tenant_id"`
	PONumber   string    `db:"po_number"`
	VendorName string    `db:"vendor_name"`
	Currency   string    `db:"currency"`
	Total      string    `db:"total"`
	Tax        string    `db:"tax"`
	LineItems  []byte    `db:"line_items"`
	CreatedAt  time.Time `db:"created_at"`
}

func (s *Store) GetByNumber(ctx context.Context, tenantID, normalizedNumber string) (*pomatch.PurchaseOrder, error) {
	var row poRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, po_number, vendor_name, currency, total, tax, line_items, created_at
		FROM purchase_orders WHERE tenant_id = $1 AND po_number = $2
	`, tenantID, normalizedNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	po, err := rowToPO(row)
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]pomatch.PurchaseOrder, error) {
	var rows []poRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, po_number, vendor_name, currency, total, tax, line_items, created_at
		FROM purchase_orders WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]pomatch.PurchaseOrder, 0, len(rows))
	for _, row := range rows {
		po, err := rowToPO(row)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, nil
}

func rowToPO(row poRow) (pomatch.PurchaseOrder, error) {
	po := pomatch.PurchaseOrder{
		ID:         row.ID,
		TenantID:   row.TenantID,
		PONumber:   row.PONumber,
		VendorName: row.VendorName,
		Currency:   row.Currency,
		Total:      parseDecimalOrZero(row.Total),
		Tax:        parseDecimalOrZero(row.Tax),
		CreatedAt:  row.CreatedAt,
	}
	if len(row.LineItems) > 0 {
		var raw []struct {
			Description string `json:"description"`
			Quantity    string `json:"quantity"`
			UnitPrice   string `json:"unit_price"`
		}
		if err := json.Unmarshal(row.LineItems, &raw); err != nil {
			return pomatch.PurchaseOrder{}, err
		}
		for _, item := range raw {
			po.LineItems = append(po.LineItems, pomatch.POLineItem{
				Description: item.Description,
				Quantity:    parseDecimalOrZero(item.Quantity),
				UnitPrice:   parseDecimalOrZero(item.UnitPrice),
			})
		}
	}
	return po, nil
}
