package dto

import (
	"time"

	"blendpos-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type PaymentLineRequest struct {
	AmountPaid     decimal.Decimal        `json:"amount_paid"     validate:"min=0"`
	PaymentMethod  string                 `json:"payment_method"  validate:"required,oneof=cash card transfer qr"`
	DiscountAmount decimal.Decimal        `json:"discount_amount" validate:"min=0"`
	DiscountReason *string                `json:"discount_reason" validate:"omitempty,max=255"`
	TipAmount      decimal.Decimal        `json:"tip_amount"      validate:"min=0"`
	ExternalRef    *string                `json:"external_ref"    validate:"omitempty,max=128"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type RegisterPaymentRequest struct {
	BillingID string `json:"billing_id" validate:"required,max=64"`
	SessionID string `json:"session_id" validate:"required,max=64"`
	// TotalDue is the order total supplied by the billing subsystem; it is only
	// used when this call creates the ledger.
	TotalDue *decimal.Decimal `json:"total_due" validate:"omitempty"`
	// IdempotencyKey suppresses duplicate batches for the same bill when set.
	IdempotencyKey *string `json:"idempotency_key" validate:"omitempty,max=128"`
	// Scope names the register that takes the money; its open caja session,
	// if any, is recorded on every line.
	Scope string               `json:"scope" validate:"omitempty,max=64"`
	Lines []PaymentLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type ApplyDiscountRequest struct {
	BillingID string           `json:"-"`
	SessionID string           `json:"session_id" validate:"required,max=64"`
	Amount    decimal.Decimal  `json:"amount"     validate:"required,gt=0"`
	Reason    *string          `json:"reason"     validate:"omitempty,max=255"`
	TotalDue  *decimal.Decimal `json:"total_due"  validate:"omitempty"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

// LedgerResponse is the BillLedger snapshot returned to callers and stored in
// the audit trail as old/new values.
type LedgerResponse struct {
	BillingID     string          `json:"billing_id"`
	SessionID     string          `json:"session_id"`
	TotalDue      decimal.Decimal `json:"total_due"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalTip      decimal.Decimal `json:"total_tip"`
	Status        string          `json:"status"`
	ClosedAt      *string         `json:"closed_at,omitempty"`
	UpdatedAt     string          `json:"updated_at"`
}

func NewLedgerResponse(l *model.BillLedger) *LedgerResponse {
	if l == nil {
		return nil
	}
	resp := &LedgerResponse{
		BillingID:     l.BillingID,
		SessionID:     l.SessionID,
		TotalDue:      l.TotalDue,
		TotalDiscount: l.TotalDiscount,
		TotalPaid:     l.TotalPaid,
		TotalTip:      l.TotalTip,
		Status:        l.Status,
		UpdatedAt:     FormatTime(l.UpdatedAt),
	}
	if l.ClosedAt != nil {
		t := FormatTime(*l.ClosedAt)
		resp.ClosedAt = &t
	}
	return resp
}

type PaymentResponse struct {
	ID             string                 `json:"id"`
	BillingID      string                 `json:"billing_id"`
	SessionID      string                 `json:"session_id"`
	AmountPaid     decimal.Decimal        `json:"amount_paid"`
	PaymentMethod  string                 `json:"payment_method"`
	DiscountAmount decimal.Decimal        `json:"discount_amount"`
	DiscountReason *string                `json:"discount_reason"`
	TipAmount      decimal.Decimal        `json:"tip_amount"`
	ExternalRef    *string                `json:"external_ref"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CajaSessionID  *string                `json:"caja_session_id"`
	CreatedBy      *string                `json:"created_by"`
	CreatedAt      string                 `json:"created_at"`
}

func NewPaymentResponse(p *model.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID.String(),
		BillingID:      p.BillingID,
		SessionID:      p.SessionID,
		AmountPaid:     p.AmountPaid,
		PaymentMethod:  p.PaymentMethod,
		DiscountAmount: p.DiscountAmount,
		DiscountReason: p.DiscountReason,
		TipAmount:      p.TipAmount,
		ExternalRef:    p.ExternalRef,
		Metadata:       p.Metadata,
		CajaSessionID:  uuidString(p.CajaSessionID),
		CreatedBy:      p.CreatedBy,
		CreatedAt:      FormatTime(p.CreatedAt),
	}
}

// ReconcileResponse compares the ledger row with the totals recomputed from
// payment and refund rows.
type ReconcileResponse struct {
	BillingID        string          `json:"billing_id"`
	LedgerPaid       decimal.Decimal `json:"ledger_paid"`
	ComputedPaid     decimal.Decimal `json:"computed_paid"`
	LedgerDiscount   decimal.Decimal `json:"ledger_discount"`
	ComputedDiscount decimal.Decimal `json:"computed_discount"`
	LedgerTip        decimal.Decimal `json:"ledger_tip"`
	ComputedTip      decimal.Decimal `json:"computed_tip"`
	StatusConsistent bool            `json:"status_consistent"`
	Balanced         bool            `json:"balanced"`
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// FormatTime renders timestamps the same way across every response.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
