package dto

import (
	"encoding/json"

	"blendpos-ledger/internal/model"
)

type AuditLogResponse struct {
	ID        string          `json:"id"`
	BillingID string          `json:"billing_id"`
	SessionID string          `json:"session_id"`
	Action    string          `json:"action"`
	OldValue  json.RawMessage `json:"old_value"`
	NewValue  json.RawMessage `json:"new_value"`
	Actor     *string         `json:"actor"`
	CreatedAt string          `json:"created_at"`
}

func NewAuditLogResponse(e *model.AuditLogEntry) AuditLogResponse {
	return AuditLogResponse{
		ID:        e.ID.String(),
		BillingID: e.BillingID,
		SessionID: e.SessionID,
		Action:    e.Action,
		OldValue:  json.RawMessage(e.OldValue),
		NewValue:  json.RawMessage(e.NewValue),
		Actor:     e.Actor,
		CreatedAt: FormatTime(e.CreatedAt),
	}
}

type AuditLogListResponse struct {
	Data     []AuditLogResponse `json:"data"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}
