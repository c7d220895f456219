package service

import (
	"context"
	"testing"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func refund(amount string) dto.RefundRequest {
	return dto.RefundRequest{Amount: dec(amount), Method: model.MethodCash, Reason: "wrong dish"}
}

// refundIn pays a cash refund out of scope's drawer.
func refundIn(scope, amount string) dto.RefundRequest {
	req := refund(amount)
	req.Scope = scope
	return req
}

func TestProcessRefund_BoundedByPayment(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.payment.RegisterPayment(ctx, "cashier-1", pay("B-C", "50", line(model.MethodCash, "50")))
	require.NoError(t, err)
	paymentID := onlyPaymentID(t, s, "B-C")

	res, err := s.refund.ProcessRefund(ctx, "sup-1", paymentID, refund("20"))
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(res.RemainingRefundable))
	assert.True(t, dec("30").Equal(res.Ledger.TotalPaid))
	assert.Equal(t, model.LedgerPartial, res.Ledger.Status)

	_, err = s.refund.ProcessRefund(ctx, "sup-1", paymentID, refund("40"))
	requireKind(t, err, apierror.KindConflict, apierror.CodeInvalidRefundAmount)

	l, err := s.ledger.GetLedger(ctx, "B-C")
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(l.TotalPaid))

	refunds, err := s.refund.GetRefundsByPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "wrong dish", refunds[0].Reason)

	byBill, err := s.refund.GetRefundsByBilling(ctx, "B-C")
	require.NoError(t, err)
	assert.Len(t, byBill, 1)
}

func TestProcessRefund_FullRefundLeavesUnpaid(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.payment.RegisterPayment(ctx, "cashier-1", pay("B-1", "40", line(model.MethodCard, "40")))
	require.NoError(t, err)
	paymentID := onlyPaymentID(t, s, "B-1")

	res, err := s.refund.ProcessRefund(ctx, "sup-1", paymentID, dto.RefundRequest{Amount: dec("40"), Method: model.MethodCard, Reason: "void"})
	require.NoError(t, err)
	assert.True(t, res.RemainingRefundable.IsZero())
	assert.Equal(t, model.LedgerUnpaid, res.Ledger.Status)

	rep, err := s.ledger.Reconcile(ctx, "B-1")
	require.NoError(t, err)
	assert.True(t, rep.Balanced)
}

func TestProcessRefund_InvalidAmount(t *testing.T) {
	s := newServices(t, nil, nil)
	for _, amount := range []string{"0", "-5"} {
		_, err := s.refund.ProcessRefund(context.Background(), "sup-1", uuid.New(), refund(amount))
		requireKind(t, err, apierror.KindValidation, apierror.CodeInvalidRefundAmount)
	}
}

func TestProcessRefund_UnstorableAmount(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.payment.RegisterPayment(ctx, "cashier-1", pay("B-1", "100", line(model.MethodCash, "100")))
	require.NoError(t, err)
	paymentID := onlyPaymentID(t, s, "B-1")

	for _, amount := range []string{"0.001", "10000000000"} {
		_, err := s.refund.ProcessRefund(ctx, "sup-1", paymentID, refund(amount))
		e := requireKind(t, err, apierror.KindValidation, apierror.CodeValidation)
		assert.Contains(t, e.Fields, "amount")
	}

	refunds, err := s.refund.GetRefundsByBilling(ctx, "B-1")
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestProcessRefund_Validation(t *testing.T) {
	s := newServices(t, nil, nil)

	_, err := s.refund.ProcessRefund(context.Background(), "sup-1", uuid.New(),
		dto.RefundRequest{Amount: dec("5"), Method: "voucher", Reason: "  "})
	e := requireKind(t, err, apierror.KindValidation, apierror.CodeValidation)
	assert.Contains(t, e.Fields, "method")
	assert.Contains(t, e.Fields, "reason")
}

func TestProcessRefund_UnknownPayment(t *testing.T) {
	s := newServices(t, nil, nil)

	_, err := s.refund.ProcessRefund(context.Background(), "sup-1", uuid.New(), refund("5"))
	requireKind(t, err, apierror.KindNotFound, apierror.CodePaymentNotFound)

	_, err = s.refund.GetRefundsByPayment(context.Background(), uuid.New())
	requireKind(t, err, apierror.KindNotFound, apierror.CodePaymentNotFound)
}

func TestProcessRefund_ConcurrentRefundsNeverExceedPayment(t *testing.T) {
	s := newServices(t, nil, nil)
	ctx := context.Background()

	_, err := s.payment.RegisterPayment(ctx, "cashier-1", pay("B-1", "100", line(model.MethodCash, "100")))
	require.NoError(t, err)
	paymentID := onlyPaymentID(t, s, "B-1")

	// 5 × 30 against 100: exactly three can succeed.
	results := make([]error, 5)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			_, results[i] = s.refund.ProcessRefund(ctx, "sup-1", paymentID, refund("30"))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, apierror.KindConflict, apierror.CodeInvalidRefundAmount)
	}
	assert.Equal(t, 3, succeeded)

	l, err := s.ledger.GetLedger(ctx, "B-1")
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(l.TotalPaid))
}
