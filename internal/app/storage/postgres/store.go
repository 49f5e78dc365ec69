// Package postgres implements the storage interfaces backed by PostgreSQL,
// using jmoiron/sqlx for scanning and lib/pq as the driver.
package postgres

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// Store implements every repository interface in internal/app/storage
// behind a single PostgreSQL connection pool.
type Store struct {
	db *sqlx.DB
}

var (
	_ storage.InvoiceStore        = (*Store)(nil)
	_ storage.VendorStore         = (*Store)(nil)
	_ storage.ApprovalStore       = (*Store)(nil)
	_ storage.WorkflowStore       = (*Store)(nil)
	_ storage.SLAStore            = (*Store)(nil)
	_ storage.AuditStore          = (*Store)(nil)
	_ storage.DuplicateIndexStore = (*Store)(nil)
	_ storage.POStore             = (*Store)(nil)
)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open opens a PostgreSQL connection pool and wraps it in a Store.
func Open(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return New(db), nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time.UTC()
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// parseDecimalOrZero parses a numeric column stored as text. Rows are only
// ever written by Store itself via decimal.String(), so a parse failure
// indicates out-of-band data corruption rather than a recoverable input
// error; zero is returned so a bad row degrades rather than panics.
func parseDecimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
