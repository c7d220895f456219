package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLedger_NotFound(t *testing.T) {
	s := newServices(t, nil, nil)
	_, err := s.ledger.GetLedger(context.Background(), "nope")
	requireKind(t, err, apierror.KindNotFound, apierror.CodeLedgerNotFound)
}

func TestApplyDiscount_CompletesBill(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.payment.RegisterPayment(ctx, "cashier-1", pay("B-1", "100", line(model.MethodCash, "90")))
	require.NoError(t, err)

	l, err := s.ledger.ApplyDiscount(ctx, "sup-1", dto.ApplyDiscountRequest{
		BillingID: "B-1", SessionID: "table-7", Amount: dec("10"), Reason: strPtr("regular"),
	})
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(l.TotalDiscount))
	assert.True(t, dec("90").Equal(l.TotalPaid))
	assert.Equal(t, model.LedgerPaid, l.Status)

	// The discount row keeps totals rebuildable from the payments table.
	rep, err := s.ledger.Reconcile(ctx, "B-1")
	require.NoError(t, err)
	assert.True(t, rep.Balanced)
	assert.True(t, dec("10").Equal(rep.ComputedDiscount))
}

func TestApplyDiscount_Validation(t *testing.T) {
	s := newServices(t, nil, nil)
	_, err := s.ledger.ApplyDiscount(context.Background(), "sup-1", dto.ApplyDiscountRequest{
		BillingID: "B-1", SessionID: "table-7", Amount: dec("0"),
	})
	e := requireKind(t, err, apierror.KindValidation, apierror.CodeValidation)
	assert.Contains(t, e.Fields, "amount")

	_, err = s.ledger.ApplyDiscount(context.Background(), "sup-1", dto.ApplyDiscountRequest{
		BillingID: "B-1", SessionID: "table-7", Amount: dec("0.125"), TotalDue: decPtr("1e10"),
	})
	e = requireKind(t, err, apierror.KindValidation, apierror.CodeValidation)
	assert.Equal(t, "must have at most 2 decimal places", e.Fields["amount"])
	assert.Equal(t, "must be less than 10000000000", e.Fields["total_due"])
}

func TestCloseBill(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.ledger.CloseBill(ctx, "cashier-1", "B-1")
	requireKind(t, err, apierror.KindNotFound, apierror.CodeLedgerNotFound)

	_, err = s.payment.RegisterPayment(ctx, "cashier-1", pay("B-1", "20", line(model.MethodCash, "20")))
	require.NoError(t, err)

	first, err := s.ledger.CloseBill(ctx, "cashier-1", "B-1")
	require.NoError(t, err)
	require.NotNil(t, first.ClosedAt)
	assert.Equal(t, model.LedgerPaid, first.Status)

	time.Sleep(1100 * time.Millisecond)
	second, err := s.ledger.CloseBill(ctx, "cashier-1", "B-1")
	require.NoError(t, err)
	assert.Equal(t, *first.ClosedAt, *second.ClosedAt)
}

func TestReconcile_DetectsDrift(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.payment.RegisterPayment(ctx, "cashier-1", pay("B-1", "100", line(model.MethodCash, "40")))
	require.NoError(t, err)

	// Tamper with the ledger row behind the services' back.
	require.NoError(t, s.store.WithinTx(ctx, func(tx repository.Tx) error {
		l, err := tx.LockLedger(ctx, "B-1", nil)
		if err != nil {
			return err
		}
		l.TotalPaid = dec("45")
		return tx.SaveLedger(ctx, l)
	}))

	rep, err := s.ledger.Reconcile(ctx, "B-1")
	require.NoError(t, err)
	assert.False(t, rep.Balanced)
	assert.True(t, rep.StatusConsistent)
	assert.True(t, dec("40").Equal(rep.ComputedPaid))
	assert.True(t, dec("45").Equal(rep.LedgerPaid))
}

func TestAuditTrail(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.payment.RegisterPayment(ctx, "cashier-1", pay("B-1", "100", line(model.MethodCash, "60")))
	require.NoError(t, err)
	_, err = s.payment.RegisterPayment(ctx, "cashier-2", pay("B-1", "", line(model.MethodCard, "40")))
	require.NoError(t, err)
	paymentID := onlyPaymentIDByMethod(t, s, "B-1", model.MethodCash)
	_, err = s.refund.ProcessRefund(ctx, "sup-1", paymentID, refund("10"))
	require.NoError(t, err)

	logs, err := s.audit.ListLogs(ctx, "B-1", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, logs.Total)
	require.Len(t, logs.Data, 2)
	assert.Equal(t, model.ActionRefund, logs.Data[0].Action)
	assert.Equal(t, "sup-1", *logs.Data[0].Actor)

	last, err := s.audit.ListLogs(ctx, "B-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, last.Data, 1)
	created := last.Data[0]
	assert.Equal(t, model.ActionRegisterPayment, created.Action)
	assert.Nil(t, created.OldValue, "creation has no previous state")

	var snap dto.LedgerResponse
	require.NoError(t, json.Unmarshal(created.NewValue, &snap))
	assert.True(t, dec("60").Equal(snap.TotalPaid))
	assert.Equal(t, model.LedgerPartial, snap.Status)
}

func onlyPaymentIDByMethod(t *testing.T, s *services, billingID, method string) uuid.UUID {
	t.Helper()
	payments, err := s.payment.ListPayments(context.Background(), billingID)
	require.NoError(t, err)
	for _, p := range payments {
		if p.PaymentMethod == method {
			id, err := uuid.Parse(p.ID)
			require.NoError(t, err)
			return id
		}
	}
	t.Fatalf("no %s payment on %s", method, billingID)
	return uuid.Nil
}
