package repository

import (
	"context"

	"blendpos-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

func (r *gormReader) FindPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormReader) ListPaymentsByBilling(ctx context.Context, billingID string) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("billing_id = ?", billingID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *gormReader) CountPaymentsByIdempotencyKey(ctx context.Context, billingID, key string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("billing_id = ? AND idempotency_key = ?", billingID, key).
		Count(&n).Error
	return n, err
}

func (r *gormReader) SumBillingTotals(ctx context.Context, billingID string) (BillingTotals, error) {
	var row struct {
		Paid     decimal.Decimal
		Discount decimal.Decimal
		Tip      decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Select("COALESCE(SUM(amount_paid),0) AS paid, COALESCE(SUM(discount_amount),0) AS discount, COALESCE(SUM(tip_amount),0) AS tip").
		Where("billing_id = ?", billingID).
		Scan(&row).Error
	if err != nil {
		return BillingTotals{}, err
	}

	var refunded struct{ Total decimal.Decimal }
	err = r.db.WithContext(ctx).Model(&model.Refund{}).
		Select("COALESCE(SUM(amount),0) AS total").
		Where("billing_id = ?", billingID).
		Scan(&refunded).Error
	if err != nil {
		return BillingTotals{}, err
	}

	return BillingTotals{
		Paid:     row.Paid,
		Discount: row.Discount,
		Tip:      row.Tip,
		Refunded: refunded.Total,
	}, nil
}

func (r *gormReader) SumPaymentsByMethod(ctx context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error) {
	var rows []MethodSummary
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Select("payment_method AS method, COALESCE(SUM(amount_paid),0) AS total, COUNT(*) AS count").
		Where("caja_session_id = ? AND payment_method <> ?", cajaSessionID, model.MethodDiscount).
		Group("payment_method").
		Order("payment_method ASC").
		Scan(&rows).Error
	return rows, err
}

func (t *gormTx) CreatePayments(ctx context.Context, payments []model.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	return t.db.WithContext(ctx).Create(&payments).Error
}

func (t *gormTx) LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
