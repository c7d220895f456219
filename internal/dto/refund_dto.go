package dto

import (
	"blendpos-ledger/internal/model"

	"github.com/shopspring/decimal"
)

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,oneof=cash card transfer qr"`
	Reason string          `json:"reason" validate:"required,min=3,max=255"`
	// Scope is the register paying the refund out.
	Scope string `json:"scope" validate:"omitempty,max=64"`
}

type RefundResponse struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	BillingID string          `json:"billing_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reason    string          `json:"reason"`

	// CajaSessionID is the shift whose drawer paid the refund out.
	CajaSessionID *string `json:"caja_session_id"`
	CreatedBy     *string `json:"created_by"`
	CreatedAt     string  `json:"created_at"`
}

func NewRefundResponse(r *model.Refund) RefundResponse {
	return RefundResponse{
		ID:        r.ID.String(),
		PaymentID: r.PaymentID.String(),
		BillingID: r.BillingID,
		Amount:    r.Amount,
		Method:    r.Method,
		Reason:        r.Reason,
		CajaSessionID: uuidString(r.CajaSessionID),
		CreatedBy:     r.CreatedBy,
		CreatedAt:     FormatTime(r.CreatedAt),
	}
}

// ProcessRefundResponse is returned by a successful refund.
type ProcessRefundResponse struct {
	Refund              RefundResponse  `json:"refund"`
	RemainingRefundable decimal.Decimal `json:"remaining_refundable"`
	Ledger              *LedgerResponse `json:"ledger"`
}
