package repository

import (
	"context"
	"time"

	"blendpos-ledger/internal/model"

	"gorm.io/gorm/clause"
)

func (r *gormReader) FindLedger(ctx context.Context, billingID string) (*model.BillLedger, error) {
	var l model.BillLedger
	err := r.db.WithContext(ctx).Where("billing_id = ?", billingID).First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *gormReader) ListLedgersUpdatedSince(ctx context.Context, since time.Time, limit int) ([]model.BillLedger, error) {
	var ledgers []model.BillLedger
	err := r.db.WithContext(ctx).
		Where("updated_at >= ?", since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&ledgers).Error
	return ledgers, err
}

// LockLedger seeds the row with INSERT … ON CONFLICT DO NOTHING so two first
// payments on the same bill cannot both create it, then takes the row lock.
func (t *gormTx) LockLedger(ctx context.Context, billingID string, seed *model.BillLedger) (*model.BillLedger, error) {
	db := t.db.WithContext(ctx)
	if seed != nil {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "billing_id"}},
			DoNothing: true,
		}).Create(seed).Error
		if err != nil {
			return nil, err
		}
	}

	var l model.BillLedger
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("billing_id = ?", billingID).
		First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (t *gormTx) SaveLedger(ctx context.Context, l *model.BillLedger) error {
	return t.db.WithContext(ctx).Model(&model.BillLedger{}).
		Where("id = ?", l.ID).
		Updates(map[string]interface{}{
			"total_discount": l.TotalDiscount,
			"total_paid":     l.TotalPaid,
			"total_tip":      l.TotalTip,
			"status":         l.Status,
			"closed_at":      l.ClosedAt,
			"updated_at":     l.UpdatedAt,
		}).Error
}
