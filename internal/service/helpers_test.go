package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/config"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type services struct {
	store   repository.Store
	audit   AuditService
	ledger  LedgerService
	payment PaymentService
	refund  RefundService
	caja    CajaService
}

func testConfig() *config.Config {
	return &config.Config{
		TxTimeoutSeconds:    5,
		VarianceWarnPct:     1,
		VarianceCriticalPct: 5,
	}
}

func newServices(t *testing.T, store repository.Store, cfg *config.Config) *services {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryStore()
	}
	if cfg == nil {
		cfg = testConfig()
	}
	audit := NewAuditService(store)
	ledger := NewLedgerService(store, audit, cfg.TxTimeout())
	return &services{
		store:   store,
		audit:   audit,
		ledger:  ledger,
		payment: NewPaymentService(store, ledger, audit, cfg.TxTimeout()),
		refund:  NewRefundService(store, ledger, audit, cfg.TxTimeout()),
		caja:    NewCajaService(store, audit, nil, cfg),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func line(method, amount string) dto.PaymentLineRequest {
	return dto.PaymentLineRequest{AmountPaid: dec(amount), PaymentMethod: method}
}

func pay(billingID, due string, lines ...dto.PaymentLineRequest) dto.RegisterPaymentRequest {
	req := dto.RegisterPaymentRequest{BillingID: billingID, SessionID: "table-7", Lines: lines}
	if due != "" {
		req.TotalDue = decPtr(due)
	}
	return req
}

func withScope(req dto.RegisterPaymentRequest, scope string) dto.RegisterPaymentRequest {
	req.Scope = scope
	return req
}

// requireKind asserts err is an *apierror.Error of the given kind and code.
func requireKind(t *testing.T, err error, kind apierror.Kind, code string) *apierror.Error {
	t.Helper()
	require.Error(t, err)
	e, ok := apierror.As(err)
	require.True(t, ok, "expected *apierror.Error, got %T: %v", err, err)
	require.Equal(t, kind, e.Kind)
	require.Equal(t, code, e.Code)
	return e
}

// onlyPaymentID returns the id of the single non-discount payment of a bill.
func onlyPaymentID(t *testing.T, s *services, billingID string) uuid.UUID {
	t.Helper()
	payments, err := s.payment.ListPayments(context.Background(), billingID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	id, err := uuid.Parse(payments[0].ID)
	require.NoError(t, err)
	return id
}

// failingAuditStore commits nothing: every audit append inside a transaction fails.
type failingAuditStore struct{ repository.Store }

func (s failingAuditStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(failingAuditTx{tx})
	})
}

type failingAuditTx struct{ repository.Tx }

func (failingAuditTx) AppendAuditLog(context.Context, *model.AuditLogEntry) error {
	return errors.New("disk full")
}

// slowStore holds every transaction open until its context expires.
type slowStore struct{ repository.Store }

func (s slowStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
}
