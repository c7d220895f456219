package service

import (
	"context"
	"strings"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type RefundService interface {
	ProcessRefund(ctx context.Context, actorID string, paymentID uuid.UUID, req dto.RefundRequest) (*dto.ProcessRefundResponse, error)
	GetRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]dto.RefundResponse, error)
	GetRefundsByBilling(ctx context.Context, billingID string) ([]dto.RefundResponse, error)
}

type refundService struct {
	store     repository.Store
	ledger    LedgerService
	audit     AuditService
	txTimeout time.Duration
}

func NewRefundService(store repository.Store, ledger LedgerService, audit AuditService, txTimeout time.Duration) RefundService {
	return &refundService{store: store, ledger: ledger, audit: audit, txTimeout: txTimeout}
}

// ── ProcessRefund ─────────────────────────────────────────────────────────────
// Lock order is payment row, caja session (shared), then ledger row (inside
// ApplyDelta). Concurrent refunds of one payment serialise on the payment
// lock, so the remaining amount read under it cannot go stale.

func (s *refundService) ProcessRefund(ctx context.Context, actorID string, paymentID uuid.UUID, req dto.RefundRequest) (*dto.ProcessRefundResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, &apierror.Error{
			Kind:    apierror.KindValidation,
			Code:    apierror.CodeInvalidRefundAmount,
			Message: "refund amount must be greater than 0",
			Fields:  map[string]string{"amount": "must be greater than 0"},
		}
	}
	fields := map[string]string{}
	checkAmount("amount", req.Amount, fields)
	scope := optionalScope(req.Scope, fields)
	if !model.IsPaymentMethod(req.Method) {
		fields["method"] = "must be one of cash card transfer qr"
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		fields["reason"] = "is required"
	}
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	var (
		refund    *model.Refund
		after     *model.BillLedger
		remaining decimal.Decimal
	)
	err := runTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return notFoundAs(err, apierror.CodePaymentNotFound, "payment not found")
		}

		refunded, err := tx.SumRefundsByPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		refundable := p.AmountPaid.Sub(refunded)
		if req.Amount.GreaterThan(refundable) {
			return apierror.Conflict(apierror.CodeInvalidRefundAmount,
				"refund exceeds remaining refundable amount "+refundable.StringFixed(2))
		}

		cajaID, err := attachCaja(ctx, tx, scope)
		if err != nil {
			return err
		}

		refund = &model.Refund{
			ID:            uuid.New(),
			PaymentID:     p.ID,
			BillingID:     p.BillingID,
			Amount:        req.Amount,
			Method:        req.Method,
			Reason:        reason,
			CajaSessionID: cajaID,
			CreatedBy:     actorPtr(actorID),
			CreatedAt:     time.Now(),
		}
		if err := tx.CreateRefund(ctx, refund); err != nil {
			return err
		}

		before, l, err := s.ledger.ApplyDelta(ctx, tx, LedgerDelta{
			BillingID:   p.BillingID,
			SessionID:   p.SessionID,
			DueIfAbsent: decimal.Zero,
			AddPaid:     req.Amount.Neg(),
			AddDiscount: decimal.Zero,
			AddTip:      decimal.Zero,
		})
		if err != nil {
			return err
		}
		after = l
		remaining = refundable.Sub(req.Amount)
		return s.audit.Append(ctx, tx, p.BillingID, p.SessionID, model.ActionRefund,
			dto.NewLedgerResponse(before), dto.NewLedgerResponse(after), actorID)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("payment_id", paymentID.String()).
		Str("billing_id", refund.BillingID).
		Str("amount", refund.Amount.String()).
		Str("method", refund.Method).
		Msg("refund: processed")

	return &dto.ProcessRefundResponse{
		Refund:              dto.NewRefundResponse(refund),
		RemainingRefundable: remaining,
		Ledger:              dto.NewLedgerResponse(after),
	}, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *refundService) GetRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]dto.RefundResponse, error) {
	if _, err := s.store.FindPayment(ctx, paymentID); err != nil {
		return nil, notFoundAs(err, apierror.CodePaymentNotFound, "payment not found")
	}
	refunds, err := s.store.ListRefundsByPayment(ctx, paymentID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return toRefundResponses(refunds), nil
}

func (s *refundService) GetRefundsByBilling(ctx context.Context, billingID string) ([]dto.RefundResponse, error) {
	fields := map[string]string{}
	billingID = externalID("billing_id", billingID, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}
	refunds, err := s.store.ListRefundsByBilling(ctx, billingID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return toRefundResponses(refunds), nil
}

func toRefundResponses(refunds []model.Refund) []dto.RefundResponse {
	out := make([]dto.RefundResponse, 0, len(refunds))
	for i := range refunds {
		out = append(out, dto.NewRefundResponse(&refunds[i]))
	}
	return out
}
