package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment methods accepted from callers.
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
	MethodQR       = "qr"
)

// MethodDiscount marks the rows written by ApplyDiscount. Never accepted from callers.
const MethodDiscount = "discount"

// PaymentMethods is the fixed set a caller may use for payments and refunds.
var PaymentMethods = []string{MethodCash, MethodCard, MethodTransfer, MethodQR}

// IsPaymentMethod reports whether m belongs to PaymentMethods.
func IsPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}

// Payment is one immutable payment line registered against a bill.
// Refunds are separate rows; a payment is never edited.
type Payment struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BillingID      string            `gorm:"type:varchar(64);index;not null"`
	SessionID      string            `gorm:"type:varchar(64);index;not null"`
	AmountPaid     decimal.Decimal   `gorm:"type:decimal(12,2);not null"`
	PaymentMethod  string            `gorm:"type:varchar(20);not null"`
	DiscountAmount decimal.Decimal   `gorm:"type:decimal(12,2);not null;default:0"`
	DiscountReason *string
	TipAmount      decimal.Decimal   `gorm:"type:decimal(12,2);not null;default:0"`
	ExternalRef    *string           `gorm:"type:varchar(128)"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	// IdempotencyKey is shared by every line of one RegisterPayment call.
	IdempotencyKey *string `gorm:"type:varchar(128);index"`
	// CajaSessionID is the register shift that took the money, nil when no
	// caja was open in the caller's scope.
	CajaSessionID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedBy     *string    `gorm:"type:varchar(64)"`
	CreatedAt     time.Time  `gorm:"index;not null"`
}

func (Payment) TableName() string { return "payments" }

// Refund reverses part or all of a Payment.
// BillingID is copied from the payment so by-bill queries need no join.
type Refund struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PaymentID uuid.UUID       `gorm:"type:uuid;index;not null"`
	BillingID string          `gorm:"type:varchar(64);index;not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Method    string          `gorm:"type:varchar(20);not null"`
	Reason    string          `gorm:"not null"`
	// CajaSessionID is the shift whose drawer paid the refund out, which may
	// differ from the shift that took the original payment.
	CajaSessionID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedBy     *string    `gorm:"type:varchar(64)"`
	CreatedAt     time.Time  `gorm:"index;not null"`
}

func (Refund) TableName() string { return "refunds" }
