package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit actions, one per mutating operation.
const (
	ActionRegisterPayment = "register_payment"
	ActionApplyDiscount   = "apply_discount"
	ActionCloseBill       = "close_bill"
	ActionRefund          = "refund"
	ActionOpenCaja        = "open_caja"
	ActionCloseCaja       = "close_caja"
)

// AuditLogEntry is an immutable record of one ledger or caja mutation.
// Caja entries carry an empty BillingID and the caja session id as SessionID.
type AuditLogEntry struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BillingID string         `gorm:"type:varchar(64);index"`
	SessionID string         `gorm:"type:varchar(64);index"`
	Action    string         `gorm:"type:varchar(32);not null"`
	OldValue  datatypes.JSON `gorm:"type:jsonb"`
	NewValue  datatypes.JSON `gorm:"type:jsonb"`
	Actor     *string        `gorm:"type:varchar(64)"`
	CreatedAt time.Time      `gorm:"index;not null"`
}

func (AuditLogEntry) TableName() string { return "payment_logs" }
