package repository

import (
	"context"

	"blendpos-ledger/internal/model"
)

func (r *gormReader) ListAuditLogs(ctx context.Context, billingID string, offset, limit int) ([]model.AuditLogEntry, int64, error) {
	var entries []model.AuditLogEntry
	var total int64

	q := r.db.WithContext(ctx).Model(&model.AuditLogEntry{}).Where("billing_id = ?", billingID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, total, err
}

// AppendAuditLog is only reachable through a Tx; entries are never updated.
func (t *gormTx) AppendAuditLog(ctx context.Context, e *model.AuditLogEntry) error {
	return t.db.WithContext(ctx).Create(e).Error
}
