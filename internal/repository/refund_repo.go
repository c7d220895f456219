package repository

import (
	"context"

	"blendpos-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (r *gormReader) SumRefundsByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	err := r.db.WithContext(ctx).Model(&model.Refund{}).
		Select("COALESCE(SUM(amount),0) AS total").
		Where("payment_id = ?", paymentID).
		Scan(&row).Error
	return row.Total, err
}

func (r *gormReader) ListRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	var refunds []model.Refund
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&refunds).Error
	return refunds, err
}

func (r *gormReader) ListRefundsByBilling(ctx context.Context, billingID string) ([]model.Refund, error) {
	var refunds []model.Refund
	err := r.db.WithContext(ctx).
		Where("billing_id = ?", billingID).
		Order("created_at ASC").
		Find(&refunds).Error
	return refunds, err
}

func (r *gormReader) SumRefundsByMethod(ctx context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error) {
	var rows []MethodSummary
	err := r.db.WithContext(ctx).Model(&model.Refund{}).
		Select("method, COALESCE(SUM(amount),0) AS total, COUNT(*) AS count").
		Where("caja_session_id = ?", cajaSessionID).
		Group("method").
		Order("method ASC").
		Scan(&rows).Error
	return rows, err
}

func (t *gormTx) CreateRefund(ctx context.Context, r *model.Refund) error {
	return t.db.WithContext(ctx).Create(r).Error
}
