package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blendpos-ledger/internal/config"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/infra"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCajaReportWorker_WritesPDF(t *testing.T) {
	dir := t.TempDir()
	w := NewCajaReportWorker(infra.NewMailer(&config.Config{}), dir, "owner@example.com")

	payload, err := json.Marshal(CajaReportPayload{Report: dto.SessionReportResponse{
		Session: dto.CajaSessionResponse{
			ID:             "sess-1",
			Scope:          "pdv-1",
			Status:         "closed",
			OpenedBy:       "cashier-1",
			OpeningBalance: decimal.NewFromInt(100),
		},
		ExpectedCash: decimal.NewFromInt(100),
	}})
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background(), payload))

	info, err := os.Stat(filepath.Join(dir, "caja_sess-1.pdf"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestCajaReportWorker_DropsMalformedPayload(t *testing.T) {
	w := NewCajaReportWorker(nil, t.TempDir(), "")
	assert.NoError(t, w.Process(context.Background(), json.RawMessage(`{"report":`)))
}

type stubReconciler struct {
	drifted map[string]bool
	failing map[string]bool
	calls   []string
}

func (s *stubReconciler) Reconcile(_ context.Context, billingID string) (*dto.ReconcileResponse, error) {
	s.calls = append(s.calls, billingID)
	if s.failing[billingID] {
		return nil, errors.New("db down")
	}
	ok := !s.drifted[billingID]
	return &dto.ReconcileResponse{BillingID: billingID, Balanced: ok, StatusConsistent: ok}, nil
}

func seedLedgers(t *testing.T, store repository.Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		require.NoError(t, store.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := tx.LockLedger(ctx, id, model.NewBillLedger(id, "table-1", decimal.NewFromInt(10)))
			return err
		}))
		time.Sleep(time.Millisecond)
	}
}

func TestRunReconcileOnce_ReportsDrift(t *testing.T) {
	store := repository.NewMemoryStore()
	seedLedgers(t, store, "B1", "B2", "B3")

	rec := &stubReconciler{
		drifted: map[string]bool{"B2": true},
		failing: map[string]bool{"B3": true},
	}
	res, err := RunReconcileOnce(context.Background(), ReconcileCronConfig{
		Ledgers:    store,
		Reconciler: rec,
		BatchSize:  10,
	}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, []string{"B1", "B2", "B3"}, rec.calls)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, []string{"B2"}, res.Mismatched)

	b2, err := store.FindLedger(context.Background(), "B2")
	require.NoError(t, err)
	assert.True(t, res.Watermark.Equal(b2.UpdatedAt))
}

func TestRunReconcileOnce_RespectsBatchAndWatermark(t *testing.T) {
	store := repository.NewMemoryStore()
	seedLedgers(t, store, "B1", "B2")

	b2, err := store.FindLedger(context.Background(), "B2")
	require.NoError(t, err)

	rec := &stubReconciler{}
	cfg := ReconcileCronConfig{Ledgers: store, Reconciler: rec, BatchSize: 1}

	res, err := RunReconcileOnce(context.Background(), cfg, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)

	rec.calls = nil
	_, err = RunReconcileOnce(context.Background(), cfg, b2.UpdatedAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"B2"}, rec.calls)
}

func TestRunReconcileOnce_FailedLedgerHoldsWatermark(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedLedgers(t, store, "B1", "B2", "B3")

	b1, err := store.FindLedger(ctx, "B1")
	require.NoError(t, err)

	rec := &stubReconciler{failing: map[string]bool{"B1": true}}
	cfg := ReconcileCronConfig{Ledgers: store, Reconciler: rec, BatchSize: 10}

	res, err := RunReconcileOnce(ctx, cfg, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.True(t, res.Watermark.Equal(b1.UpdatedAt))

	// B1 recovers and is picked up by the next sweep
	rec.failing, rec.calls = nil, nil
	res, err = RunReconcileOnce(ctx, cfg, res.Watermark)
	require.NoError(t, err)
	assert.Equal(t, []string{"B1", "B2", "B3"}, rec.calls)
	assert.Equal(t, 3, res.Checked)
}

func TestWorkerHandlers_Lookup(t *testing.T) {
	called := false
	h := &WorkerHandlers{CajaReport: func(context.Context, json.RawMessage) error {
		called = true
		return nil
	}}

	require.NotNil(t, h.lookup(JobCajaReport))
	require.NoError(t, h.lookup(JobCajaReport)(context.Background(), nil))
	assert.True(t, called)
	assert.Nil(t, h.lookup("facturacion"))
}
