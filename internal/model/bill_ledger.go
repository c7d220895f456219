package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger status values. Status is always derived, never set directly.
const (
	LedgerUnpaid  = "unpaid"
	LedgerPartial = "partial"
	LedgerPaid    = "paid"
)

// BillLedger is the authoritative running financial summary for one billing id.
// One row per bill, created lazily on the first mutation and never deleted.
// TotalDue is a snapshot fixed at creation; totals only move by additive deltas.
type BillLedger struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BillingID     string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	SessionID     string          `gorm:"type:varchar(64);index;not null"`
	TotalDue      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalDiscount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalPaid     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalTip      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Status        string          `gorm:"type:varchar(10);not null;default:'unpaid'"`
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}

func (BillLedger) TableName() string { return "bill_ledger" }

// NewBillLedger seeds an empty ledger with the given due snapshot.
func NewBillLedger(billingID, sessionID string, due decimal.Decimal) *BillLedger {
	l := &BillLedger{
		ID:            uuid.New(),
		BillingID:     billingID,
		SessionID:     sessionID,
		TotalDue:      due,
		TotalDiscount: decimal.Zero,
		TotalPaid:     decimal.Zero,
		TotalTip:      decimal.Zero,
	}
	l.Status = DeriveStatus(l.TotalDue, l.TotalPaid, l.TotalDiscount)
	return l
}

// DeriveStatus is the only place a ledger status is computed:
// paid if paid+discount >= due, partial if paid+discount > 0, unpaid otherwise.
func DeriveStatus(due, paid, discount decimal.Decimal) string {
	covered := paid.Add(discount)
	switch {
	case covered.GreaterThanOrEqual(due):
		return LedgerPaid
	case covered.IsPositive():
		return LedgerPartial
	default:
		return LedgerUnpaid
	}
}

// Apply adds the deltas and recomputes Status.
func (l *BillLedger) Apply(addPaid, addDiscount, addTip decimal.Decimal) {
	l.TotalPaid = l.TotalPaid.Add(addPaid)
	l.TotalDiscount = l.TotalDiscount.Add(addDiscount)
	l.TotalTip = l.TotalTip.Add(addTip)
	l.Recompute()
}

func (l *BillLedger) Recompute() {
	l.Status = DeriveStatus(l.TotalDue, l.TotalPaid, l.TotalDiscount)
}
