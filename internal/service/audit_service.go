package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	defaultLogPageSize = 20
	maxLogPageSize     = 100
)

// AuditService is the append-only trail of ledger and caja mutations.
// Append takes the caller's transaction so an entry commits or rolls back with
// the mutation it documents.
type AuditService interface {
	Append(ctx context.Context, tx repository.Tx, billingID, sessionID, action string, oldValue, newValue any, actorID string) error
	ListLogs(ctx context.Context, billingID string, page, pageSize int) (*dto.AuditLogListResponse, error)
}

type auditService struct {
	store repository.Store
}

func NewAuditService(store repository.Store) AuditService {
	return &auditService{store: store}
}

func (s *auditService) Append(ctx context.Context, tx repository.Tx, billingID, sessionID, action string, oldValue, newValue any, actorID string) error {
	oldJSON, err := snapshot(oldValue)
	if err != nil {
		return fmt.Errorf("audit: encode old value: %w", err)
	}
	newJSON, err := snapshot(newValue)
	if err != nil {
		return fmt.Errorf("audit: encode new value: %w", err)
	}
	return tx.AppendAuditLog(ctx, &model.AuditLogEntry{
		ID:        uuid.New(),
		BillingID: billingID,
		SessionID: sessionID,
		Action:    action,
		OldValue:  oldJSON,
		NewValue:  newJSON,
		Actor:     actorPtr(actorID),
		CreatedAt: time.Now(),
	})
}

func (s *auditService) ListLogs(ctx context.Context, billingID string, page, pageSize int) (*dto.AuditLogListResponse, error) {
	fields := map[string]string{}
	billingID = externalID("billing_id", billingID, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	page, pageSize, offset := pageBounds(page, pageSize, defaultLogPageSize, maxLogPageSize)
	entries, total, err := s.store.ListAuditLogs(ctx, billingID, offset, pageSize)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	data := make([]dto.AuditLogResponse, 0, len(entries))
	for i := range entries {
		data = append(data, dto.NewAuditLogResponse(&entries[i]))
	}
	return &dto.AuditLogListResponse{Data: data, Total: total, Page: page, PageSize: pageSize}, nil
}

// snapshot encodes v for a jsonb column; nil (or a typed nil) is stored as NULL.
func snapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return datatypes.JSON(b), nil
}
