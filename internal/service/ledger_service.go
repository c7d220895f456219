package service

import (
	"context"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// LedgerDelta is one additive change to a bill's running totals.
// Refunds pass a negative AddPaid.
type LedgerDelta struct {
	BillingID   string
	SessionID   string
	DueIfAbsent decimal.Decimal
	AddPaid     decimal.Decimal
	AddDiscount decimal.Decimal
	AddTip      decimal.Decimal
}

type LedgerService interface {
	// ApplyDelta runs inside the caller's transaction. before is nil when this
	// call created the ledger.
	ApplyDelta(ctx context.Context, tx repository.Tx, d LedgerDelta) (before, after *model.BillLedger, err error)

	GetLedger(ctx context.Context, billingID string) (*dto.LedgerResponse, error)
	ApplyDiscount(ctx context.Context, actorID string, req dto.ApplyDiscountRequest) (*dto.LedgerResponse, error)
	CloseBill(ctx context.Context, actorID, billingID string) (*dto.LedgerResponse, error)
	Reconcile(ctx context.Context, billingID string) (*dto.ReconcileResponse, error)
}

type ledgerService struct {
	store     repository.Store
	audit     AuditService
	txTimeout time.Duration
}

func NewLedgerService(store repository.Store, audit AuditService, txTimeout time.Duration) LedgerService {
	return &ledgerService{store: store, audit: audit, txTimeout: txTimeout}
}

// ── ApplyDelta ────────────────────────────────────────────────────────────────
// 1. lock (seeding when absent)  2. add deltas  3. derive status  4. write back.
// The row lock is held until the caller's transaction ends.

func (s *ledgerService) ApplyDelta(ctx context.Context, tx repository.Tx, d LedgerDelta) (*model.BillLedger, *model.BillLedger, error) {
	now := time.Now()
	seed := model.NewBillLedger(d.BillingID, d.SessionID, d.DueIfAbsent)
	seed.CreatedAt = now
	seed.UpdatedAt = now

	l, err := tx.LockLedger(ctx, d.BillingID, seed)
	if err != nil {
		return nil, nil, err
	}

	var before *model.BillLedger
	if l.ID != seed.ID {
		prev := *l
		before = &prev
	}

	l.Apply(d.AddPaid, d.AddDiscount, d.AddTip)
	for _, total := range []decimal.Decimal{l.TotalPaid, l.TotalDiscount, l.TotalTip} {
		if total.Abs().GreaterThanOrEqual(maxAmount) {
			return nil, nil, apierror.Validation("ledger totals would exceed 9999999999.99", nil)
		}
	}
	l.UpdatedAt = now
	if err := tx.SaveLedger(ctx, l); err != nil {
		return nil, nil, err
	}
	return before, l, nil
}

// ── GetLedger ─────────────────────────────────────────────────────────────────

func (s *ledgerService) GetLedger(ctx context.Context, billingID string) (*dto.LedgerResponse, error) {
	fields := map[string]string{}
	billingID = externalID("billing_id", billingID, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	l, err := s.store.FindLedger(ctx, billingID)
	if err != nil {
		return nil, notFoundAs(err, apierror.CodeLedgerNotFound, "ledger not found for billing id")
	}
	return dto.NewLedgerResponse(l), nil
}

// ── ApplyDiscount ─────────────────────────────────────────────────────────────
// A discount row (method "discount", amount_paid 0) is written next to the
// ledger delta so totals can always be rebuilt from the payments table.

func (s *ledgerService) ApplyDiscount(ctx context.Context, actorID string, req dto.ApplyDiscountRequest) (*dto.LedgerResponse, error) {
	fields := map[string]string{}
	billingID := externalID("billing_id", req.BillingID, fields)
	sessionID := externalID("session_id", req.SessionID, fields)
	if !req.Amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	}
	checkAmount("amount", req.Amount, fields)
	due := decimal.Zero
	if req.TotalDue != nil {
		if req.TotalDue.IsNegative() {
			fields["total_due"] = "must be greater than or equal to 0"
		}
		checkAmount("total_due", *req.TotalDue, fields)
		due = *req.TotalDue
	}
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	var after *model.BillLedger
	err := runTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx repository.Tx) error {
		row := model.Payment{
			ID:             uuid.New(),
			BillingID:      billingID,
			SessionID:      sessionID,
			AmountPaid:     decimal.Zero,
			PaymentMethod:  model.MethodDiscount,
			DiscountAmount: req.Amount,
			DiscountReason: optionalString(req.Reason),
			TipAmount:      decimal.Zero,
			CreatedBy:      actorPtr(actorID),
			CreatedAt:      time.Now(),
		}
		if err := tx.CreatePayments(ctx, []model.Payment{row}); err != nil {
			return err
		}

		before, l, err := s.ApplyDelta(ctx, tx, LedgerDelta{
			BillingID:   billingID,
			SessionID:   sessionID,
			DueIfAbsent: due,
			AddPaid:     decimal.Zero,
			AddDiscount: req.Amount,
			AddTip:      decimal.Zero,
		})
		if err != nil {
			return err
		}
		after = l
		return s.audit.Append(ctx, tx, billingID, sessionID, model.ActionApplyDiscount,
			dto.NewLedgerResponse(before), dto.NewLedgerResponse(after), actorID)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("billing_id", billingID).
		Str("amount", req.Amount.String()).
		Str("status", after.Status).
		Msg("ledger: discount applied")
	return dto.NewLedgerResponse(after), nil
}

// ── CloseBill ─────────────────────────────────────────────────────────────────
// Only locks an existing ledger; closing never creates one.

func (s *ledgerService) CloseBill(ctx context.Context, actorID, billingID string) (*dto.LedgerResponse, error) {
	fields := map[string]string{}
	billingID = externalID("billing_id", billingID, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	var after *model.BillLedger
	err := runTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx repository.Tx) error {
		l, err := tx.LockLedger(ctx, billingID, nil)
		if err != nil {
			return notFoundAs(err, apierror.CodeLedgerNotFound, "ledger not found for billing id")
		}
		before := *l

		now := time.Now()
		l.Recompute()
		if l.ClosedAt == nil {
			l.ClosedAt = &now
		}
		l.UpdatedAt = now
		if err := tx.SaveLedger(ctx, l); err != nil {
			return err
		}
		after = l
		return s.audit.Append(ctx, tx, billingID, l.SessionID, model.ActionCloseBill,
			dto.NewLedgerResponse(&before), dto.NewLedgerResponse(after), actorID)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("billing_id", billingID).Str("status", after.Status).Msg("ledger: bill closed")
	return dto.NewLedgerResponse(after), nil
}

// ── Reconcile ─────────────────────────────────────────────────────────────────

// Reconcile recomputes a bill's totals from its payment and refund rows and
// compares them with the ledger row.
func (s *ledgerService) Reconcile(ctx context.Context, billingID string) (*dto.ReconcileResponse, error) {
	fields := map[string]string{}
	billingID = externalID("billing_id", billingID, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	l, err := s.store.FindLedger(ctx, billingID)
	if err != nil {
		return nil, notFoundAs(err, apierror.CodeLedgerNotFound, "ledger not found for billing id")
	}
	totals, err := s.store.SumBillingTotals(ctx, billingID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	computedPaid := totals.Paid.Sub(totals.Refunded)
	resp := &dto.ReconcileResponse{
		BillingID:        billingID,
		LedgerPaid:       l.TotalPaid,
		ComputedPaid:     computedPaid,
		LedgerDiscount:   l.TotalDiscount,
		ComputedDiscount: totals.Discount,
		LedgerTip:        l.TotalTip,
		ComputedTip:      totals.Tip,
		StatusConsistent: l.Status == model.DeriveStatus(l.TotalDue, l.TotalPaid, l.TotalDiscount),
	}
	resp.Balanced = resp.StatusConsistent &&
		l.TotalPaid.Equal(computedPaid) &&
		l.TotalDiscount.Equal(totals.Discount) &&
		l.TotalTip.Equal(totals.Tip)
	return resp, nil
}
