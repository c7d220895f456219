package repository

import (
	"context"
	"errors"
	"time"

	"blendpos-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	// (one open caja session per scope).
	ErrConflict = errors.New("repository: conflict")
)

// MethodSummary is a per-method aggregate of one caja session.
type MethodSummary struct {
	Method string
	Total  decimal.Decimal
	Count  int64
}

// BillingTotals is the sum of every payment and refund row of one bill.
type BillingTotals struct {
	Paid     decimal.Decimal
	Discount decimal.Decimal
	Tip      decimal.Decimal
	Refunded decimal.Decimal
}

// Reader holds the read-only queries. Both Store and Tx implement it; reads
// through a Tx observe that transaction's uncommitted writes.
type Reader interface {
	FindLedger(ctx context.Context, billingID string) (*model.BillLedger, error)
	ListLedgersUpdatedSince(ctx context.Context, since time.Time, limit int) ([]model.BillLedger, error)

	FindPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	ListPaymentsByBilling(ctx context.Context, billingID string) ([]model.Payment, error)
	CountPaymentsByIdempotencyKey(ctx context.Context, billingID, key string) (int64, error)
	SumBillingTotals(ctx context.Context, billingID string) (BillingTotals, error)
	// SumPaymentsByMethod aggregates amount_paid of the rows attributed to a
	// caja session, discount rows excluded.
	SumPaymentsByMethod(ctx context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error)

	SumRefundsByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error)
	ListRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error)
	ListRefundsByBilling(ctx context.Context, billingID string) ([]model.Refund, error)
	SumRefundsByMethod(ctx context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error)

	// ListAuditLogs returns a bill's entries newest first plus the total count.
	ListAuditLogs(ctx context.Context, billingID string, offset, limit int) ([]model.AuditLogEntry, int64, error)

	FindOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error)
	FindCajaSession(ctx context.Context, id uuid.UUID) (*model.CajaSession, error)
	// ListCajaSessions returns sessions newest first; an empty scope lists all.
	ListCajaSessions(ctx context.Context, scope string, offset, limit int) ([]model.CajaSession, int64, error)
}

// Tx is the write surface available inside one transaction. Every mutation of
// the core goes through a Tx so the mutation and its audit entry commit together.
type Tx interface {
	Reader

	// LockLedger returns the ledger row for billingID holding an exclusive lock
	// until the transaction ends. When the row is absent and seed is non-nil the
	// seed is inserted first; with a nil seed ErrNotFound is returned.
	LockLedger(ctx context.Context, billingID string, seed *model.BillLedger) (*model.BillLedger, error)
	SaveLedger(ctx context.Context, l *model.BillLedger) error

	CreatePayments(ctx context.Context, payments []model.Payment) error
	// LockPayment reads a payment holding a row lock so concurrent refunds of the
	// same payment serialize.
	LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	CreateRefund(ctx context.Context, r *model.Refund) error

	AppendAuditLog(ctx context.Context, e *model.AuditLogEntry) error

	// CreateCajaSession returns ErrConflict when scope already has an open session.
	CreateCajaSession(ctx context.Context, s *model.CajaSession) error
	LockOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error)
	// ShareOpenCajaSession reads the open session of scope under a shared lock.
	// Payments and refunds hold it while they attribute rows to the session,
	// so a concurrent close waits for them and sees their rows.
	ShareOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error)
	UpdateCajaSession(ctx context.Context, s *model.CajaSession) error
}

// Store is the persistence boundary selected once at startup: NewGormStore for
// Postgres, NewMemoryStore for single-instance development.
type Store interface {
	Reader
	// WithinTx runs fn in one transaction. A non-nil error from fn, or a
	// cancelled ctx, rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
