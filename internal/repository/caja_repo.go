package repository

import (
	"context"

	"blendpos-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

func (r *gormReader) FindOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error) {
	var s model.CajaSession
	err := r.db.WithContext(ctx).Where("scope = ? AND status = ?", scope, model.CajaOpen).First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *gormReader) FindCajaSession(ctx context.Context, id uuid.UUID) (*model.CajaSession, error) {
	var s model.CajaSession
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *gormReader) ListCajaSessions(ctx context.Context, scope string, offset, limit int) ([]model.CajaSession, int64, error) {
	var sessions []model.CajaSession
	var total int64

	q := r.db.WithContext(ctx).Model(&model.CajaSession{})
	if scope != "" {
		q = q.Where("scope = ?", scope)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("opened_at DESC").Offset(offset).Limit(limit).Find(&sessions).Error
	return sessions, total, err
}

// CreateCajaSession relies on uq_caja_sessions_open_scope; a concurrent open on
// the same scope surfaces as ErrConflict.
func (t *gormTx) CreateCajaSession(ctx context.Context, s *model.CajaSession) error {
	err := t.db.WithContext(ctx).Create(s).Error
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (t *gormTx) LockOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error) {
	var s model.CajaSession
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope = ? AND status = ?", scope, model.CajaOpen).
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *gormTx) ShareOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error) {
	var s model.CajaSession
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("scope = ? AND status = ?", scope, model.CajaOpen).
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *gormTx) UpdateCajaSession(ctx context.Context, s *model.CajaSession) error {
	return t.db.WithContext(ctx).Save(s).Error
}
