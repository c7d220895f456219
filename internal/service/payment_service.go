package service

import (
	"context"
	"fmt"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentService interface {
	RegisterPayment(ctx context.Context, actorID string, req dto.RegisterPaymentRequest) (*dto.LedgerResponse, error)
	ListPayments(ctx context.Context, billingID string) ([]dto.PaymentResponse, error)
}

type paymentService struct {
	store     repository.Store
	ledger    LedgerService
	audit     AuditService
	txTimeout time.Duration
}

func NewPaymentService(store repository.Store, ledger LedgerService, audit AuditService, txTimeout time.Duration) PaymentService {
	return &paymentService{store: store, ledger: ledger, audit: audit, txTimeout: txTimeout}
}

// ── RegisterPayment ───────────────────────────────────────────────────────────
// Validation happens before any transaction opens. Inside one transaction:
//   1. share-lock the caja session open in scope, if any
//   2. (idempotency key) lock the ledger and skip if the key was already used
//   3. insert one payment row per line, tagged with the caja session
//   4. ApplyDelta(Σ amount, Σ discount, Σ tip)
//   5. audit "register_payment"

func (s *paymentService) RegisterPayment(ctx context.Context, actorID string, req dto.RegisterPaymentRequest) (*dto.LedgerResponse, error) {
	fields := map[string]string{}
	billingID := externalID("billing_id", req.BillingID, fields)
	sessionID := externalID("session_id", req.SessionID, fields)
	scope := optionalScope(req.Scope, fields)
	idemKey := optionalString(req.IdempotencyKey)
	if idemKey != nil && len(*idemKey) > 128 {
		fields["idempotency_key"] = "must be at most 128 characters"
	}
	due := decimal.Zero
	if req.TotalDue != nil {
		if req.TotalDue.IsNegative() {
			fields["total_due"] = "must be greater than or equal to 0"
		}
		checkAmount("total_due", *req.TotalDue, fields)
		due = *req.TotalDue
	}
	validateLines(req.Lines, fields)

	sumPaid, sumDiscount, sumTip := decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range req.Lines {
		sumPaid = sumPaid.Add(line.AmountPaid)
		sumDiscount = sumDiscount.Add(line.DiscountAmount)
		sumTip = sumTip.Add(line.TipAmount)
	}
	for _, sum := range []decimal.Decimal{sumPaid, sumDiscount, sumTip} {
		checkAmount("lines", sum, fields)
	}
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	var after *model.BillLedger
	duplicate, seeded := false, false
	err := runTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx repository.Tx) error {
		cajaID, err := attachCaja(ctx, tx, scope)
		if err != nil {
			return err
		}

		if idemKey != nil {
			seed := model.NewBillLedger(billingID, sessionID, due)
			current, err := tx.LockLedger(ctx, billingID, seed)
			if err != nil {
				return err
			}
			seeded = current.ID == seed.ID
			n, err := tx.CountPaymentsByIdempotencyKey(ctx, billingID, *idemKey)
			if err != nil {
				return err
			}
			if n > 0 {
				duplicate = true
				after = current
				return nil
			}
		}

		now := time.Now()
		payments := make([]model.Payment, 0, len(req.Lines))
		for _, line := range req.Lines {
			payments = append(payments, model.Payment{
				ID:             uuid.New(),
				BillingID:      billingID,
				SessionID:      sessionID,
				AmountPaid:     line.AmountPaid,
				PaymentMethod:  line.PaymentMethod,
				DiscountAmount: line.DiscountAmount,
				DiscountReason: optionalString(line.DiscountReason),
				TipAmount:      line.TipAmount,
				ExternalRef:    optionalString(line.ExternalRef),
				Metadata:       datatypes.JSONMap(line.Metadata),
				IdempotencyKey: idemKey,
				CajaSessionID:  cajaID,
				CreatedBy:      actorPtr(actorID),
				CreatedAt:      now,
			})
		}
		if err := tx.CreatePayments(ctx, payments); err != nil {
			return err
		}

		before, l, err := s.ledger.ApplyDelta(ctx, tx, LedgerDelta{
			BillingID:   billingID,
			SessionID:   sessionID,
			DueIfAbsent: due,
			AddPaid:     sumPaid,
			AddDiscount: sumDiscount,
			AddTip:      sumTip,
		})
		if err != nil {
			return err
		}
		if seeded {
			before = nil
		}
		after = l
		return s.audit.Append(ctx, tx, billingID, sessionID, model.ActionRegisterPayment,
			dto.NewLedgerResponse(before), dto.NewLedgerResponse(after), actorID)
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		log.Info().Str("billing_id", billingID).Str("idempotency_key", *idemKey).Msg("payment: duplicate batch ignored")
	} else {
		log.Info().
			Str("billing_id", billingID).
			Int("lines", len(req.Lines)).
			Str("amount", sumPaid.String()).
			Str("status", after.Status).
			Msg("payment: registered")
	}
	return dto.NewLedgerResponse(after), nil
}

func validateLines(lines []dto.PaymentLineRequest, fields map[string]string) {
	if len(lines) == 0 {
		fields["lines"] = "at least one payment line is required"
		return
	}
	anyPaid := false
	for i, line := range lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		if line.AmountPaid.IsNegative() {
			fields[prefix+"amount_paid"] = "must be greater than or equal to 0"
		}
		if line.DiscountAmount.IsNegative() {
			fields[prefix+"discount_amount"] = "must be greater than or equal to 0"
		}
		if line.TipAmount.IsNegative() {
			fields[prefix+"tip_amount"] = "must be greater than or equal to 0"
		}
		checkAmount(prefix+"amount_paid", line.AmountPaid, fields)
		checkAmount(prefix+"discount_amount", line.DiscountAmount, fields)
		checkAmount(prefix+"tip_amount", line.TipAmount, fields)
		if !model.IsPaymentMethod(line.PaymentMethod) {
			fields[prefix+"payment_method"] = "must be one of cash card transfer qr"
		}
		if line.AmountPaid.IsPositive() {
			anyPaid = true
		}
	}
	if !anyPaid {
		fields["lines"] = "at least one line must have amount_paid greater than 0"
	}
}

// ── ListPayments ──────────────────────────────────────────────────────────────

func (s *paymentService) ListPayments(ctx context.Context, billingID string) ([]dto.PaymentResponse, error) {
	fields := map[string]string{}
	billingID = externalID("billing_id", billingID, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	payments, err := s.store.ListPaymentsByBilling(ctx, billingID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	out := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, dto.NewPaymentResponse(&payments[i]))
	}
	return out, nil
}
