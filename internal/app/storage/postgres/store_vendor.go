package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
)

type vendorRow struct {
	ID               string       `db:"id"`
	TenantID         string       `db:"tenant_id"`
	Name             string       `db:"name"`
	TaxID            string       `db:"tax_id"`
	PaymentTerms     string       `db:"payment_terms"`
	Currency         string       `db:"currency"`
	RiskLevel        string       `db:"risk_level"`
	Verified         bool         `db:"verified"`
	TotalInvoices    int          `db:"total_invoices"`
	TotalAmount      string       `db:"total_amount"`
	AverageAmount    string       `db:"average_amount"`
	MinAmount        string       `db:"min_amount"`
	MaxAmount        string       `db:"max_amount"`
	StdDeviation     string       `db:"std_deviation"`
	FirstInvoiceDate sql.NullTime `db:"first_invoice_date"`
	LastInvoiceDate  sql.NullTime `db:"last_invoice_date"`
	FrequencyDays    float64      `db:"frequency_days"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (s *Store) Upsert(ctx context.Context, profile vendor.Profile) (vendor.Profile, error) {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_profiles (
			id, tenant_id, name, tax_id, payment_terms, currency, risk_level, verified,
			total_invoices, total_amount, average_amount, min_amount, max_amount, std_deviation,
			first_invoice_date, last_invoice_date, frequency_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, tax_id = EXCLUDED.tax_id, payment_terms = EXCLUDED.payment_terms,
			currency = EXCLUDED.currency, risk_level = EXCLUDED.risk_level, verified = EXCLUDED.verified,
			total_invoices = EXCLUDED.total_invoices, total_amount = EXCLUDED.total_amount,
			average_amount = EXCLUDED.average_amount, min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount, std_deviation = EXCLUDED.std_deviation,
			first_invoice_date = EXCLUDED.first_invoice_date, last_invoice_date = EXCLUDED.last_invoice_date,
			frequency_days = EXCLUDED.frequency_days, updated_at = EXCLUDED.updated_at
	`,
		profile.ID, profile.TenantID, profile.Name, profile.TaxID, profile.PaymentTerms, profile.Currency,
		string(profile.RiskLevel), profile.Verified, profile.TotalInvoices,
		profile.TotalAmount.String(), profile.AverageAmount.String(), profile.MinAmount.String(),
		profile.MaxAmount.String(), profile.StdDeviation.String(),
		toNullTime(profile.FirstInvoiceDate), toNullTime(profile.LastInvoiceDate), profile.FrequencyDays,
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return vendor.Profile{}, errors.Wrap(errors.KindTransient, errors.ErrCodeTransientIO, "upsert vendor profile", 500, err)
	}
	return profile, nil
}

func (s *Store) Get(ctx context.Context, id string) (vendor.Profile, error) {
	var row vendorRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, name, tax_id, payment_terms, currency, risk_level, verified,
			total_invoices, total_amount, average_amount, min_amount, max_amount, std_deviation,
			first_invoice_date, last_invoice_date, frequency_days, created_at, updated_at
		FROM vendor_profiles WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return vendor.Profile{}, errors.VendorNotFound(id)
	}
	if err != nil {
		return vendor.Profile{}, err
	}
	return rowToVendor(row), nil
}

func (s *Store) GetByTenantAndKey(ctx context.Context, tenantID, vendorKey string) (vendor.Profile, error) {
	var row vendorRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, name, tax_id, payment_terms, currency, risk_level, verified,
			total_invoices, total_amount, average_amount, min_amount, max_amount, std_deviation,
			first_invoice_date, last_invoice_date, frequency_days, created_at, updated_at
		FROM vendor_profiles WHERE tenant_id = $1 AND lower(name) = lower($2)
	`, tenantID, strings.TrimSpace(vendorKey))
	if err == sql.ErrNoRows {
		return vendor.Profile{}, errors.VendorNotFound(vendorKey)
	}
	if err != nil {
		return vendor.Profile{}, err
	}
	return rowToVendor(row), nil
}

func rowToVendor(row vendorRow) vendor.Profile {
	return vendor.Profile{
		ID:               row.ID,
		TenantID:         row.TenantID,
		Name:             row.Name,
		TaxID:            row.TaxID,
		PaymentTerms:     row.PaymentTerms,
		Currency:         row.Currency,
		RiskLevel:        vendor.RiskLevel(row.RiskLevel),
		Verified:         row.Verified,
		TotalInvoices:    row.TotalInvoices,
		TotalAmount:      parseDecimalOrZero(row.TotalAmount),
		AverageAmount:    parseDecimalOrZero(row.AverageAmount),
		MinAmount:        parseDecimalOrZero(row.MinAmount),
		MaxAmount:        parseDecimalOrZero(row.MaxAmount),
		StdDeviation:     parseDecimalOrZero(row.StdDeviation),
		FirstInvoiceDate: fromNullTime(row.FirstInvoiceDate),
		LastInvoiceDate:  fromNullTime(row.LastInvoiceDate),
		FrequencyDays:    row.FrequencyDays,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}
