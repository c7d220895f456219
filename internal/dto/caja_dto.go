package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenCajaRequest struct {
	Scope          string          `json:"scope"           validate:"omitempty,max=64"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"min=0"`
}

type CloseCajaRequest struct {
	Scope          string          `json:"scope"           validate:"omitempty,max=64"`
	CountedBalance decimal.Decimal `json:"counted_balance" validate:"min=0"`
	Notes          *string         `json:"notes"           validate:"omitempty,max=1000"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type VarianceResponse struct {
	Amount         decimal.Decimal `json:"amount"`
	Percentage     decimal.Decimal `json:"percentage"`
	Classification string          `json:"classification"` // normal | warning | critical
}

// MethodBreakdown aggregates the payments or refunds of one method attributed to a session.
type MethodBreakdown struct {
	Method string          `json:"method"`
	Total  decimal.Decimal `json:"total"`
	Count  int64           `json:"count"`
}

type CajaSessionResponse struct {
	ID             string          `json:"id"`
	Scope          string          `json:"scope"`
	Status         string          `json:"status"`
	OpenedBy       string          `json:"opened_by"`
	OpenedAt       string          `json:"opened_at"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosedBy       *string         `json:"closed_by"`
	ClosedAt       *string         `json:"closed_at"`
	// Closing values are only present once the session is closed.
	ClosingBalanceCounted  *decimal.Decimal  `json:"closing_balance_counted"`
	ClosingBalanceExpected *decimal.Decimal  `json:"closing_balance_expected"`
	Variance               *VarianceResponse `json:"variance"`
	Notes                  *string           `json:"notes"`
}

type SessionReportResponse struct {
	Session       CajaSessionResponse `json:"session"`
	Payments      []MethodBreakdown   `json:"payments"`
	Refunds       []MethodBreakdown   `json:"refunds"`
	TotalPayments decimal.Decimal     `json:"total_payments"`
	TotalRefunds  decimal.Decimal     `json:"total_refunds"`
	ExpectedCash  decimal.Decimal     `json:"expected_cash"`
	WindowStart   string              `json:"window_start"`
	WindowEnd     string              `json:"window_end"`
}

type SessionHistoryResponse struct {
	Data  []CajaSessionResponse `json:"data"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}
