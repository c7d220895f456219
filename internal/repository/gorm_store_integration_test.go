//go:build integration

package repository_test

// Run with: go test -tags integration ./internal/repository/... -v

import (
	"context"
	"errors"
	"testing"
	"time"

	"blendpos-ledger/internal/infra"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"
)

func newPostgresStore(t *testing.T) repository.Store {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("ledger_test"),
		tcPostgres.WithUsername("blendpos"),
		tcPostgres.WithPassword("blendpos"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infra.NewDatabase(dsn)
	require.NoError(t, err)
	return repository.NewGormStore(db)
}

func TestGormStore(t *testing.T) {
	store := newPostgresStore(t)

	t.Run("concurrent deltas on one ledger serialise", func(t *testing.T) {
		ctx := context.Background()
		var g errgroup.Group
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				return store.WithinTx(ctx, func(tx repository.Tx) error {
					l, err := tx.LockLedger(ctx, "B-D", model.NewBillLedger("B-D", "table-1", decimal.NewFromInt(100)))
					if err != nil {
						return err
					}
					if err := tx.CreatePayments(ctx, []model.Payment{{
						ID:             uuid.New(),
						BillingID:      "B-D",
						SessionID:      "table-1",
						AmountPaid:     decimal.NewFromInt(30),
						PaymentMethod:  model.MethodCash,
						DiscountAmount: decimal.Zero,
						TipAmount:      decimal.Zero,
						CreatedAt:      time.Now(),
					}}); err != nil {
						return err
					}
					l.Apply(decimal.NewFromInt(30), decimal.Zero, decimal.Zero)
					l.UpdatedAt = time.Now()
					return tx.SaveLedger(ctx, l)
				})
			})
		}
		require.NoError(t, g.Wait())

		l, err := store.FindLedger(ctx, "B-D")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(300).Equal(l.TotalPaid), "got %s", l.TotalPaid)
		assert.Equal(t, model.LedgerPaid, l.Status)

		totals, err := store.SumBillingTotals(ctx, "B-D")
		require.NoError(t, err)
		assert.True(t, totals.Paid.Equal(l.TotalPaid))
	})

	t.Run("one open caja per scope", func(t *testing.T) {
		ctx := context.Background()
		results := make([]error, 4)
		var g errgroup.Group
		for i := range results {
			i := i
			g.Go(func() error {
				results[i] = store.WithinTx(ctx, func(tx repository.Tx) error {
					return tx.CreateCajaSession(ctx, &model.CajaSession{
						ID:             uuid.New(),
						Scope:          "pdv-1",
						OpenedBy:       "cashier-1",
						OpenedAt:       time.Now(),
						OpeningBalance: decimal.NewFromInt(100),
						Status:         model.CajaOpen,
					})
				})
				return nil
			})
		}
		require.NoError(t, g.Wait())

		ok := 0
		for _, err := range results {
			if err == nil {
				ok++
				continue
			}
			assert.True(t, errors.Is(err, repository.ErrConflict), "unexpected error %v", err)
		}
		assert.Equal(t, 1, ok)

		open, err := store.FindOpenCajaSession(ctx, "pdv-1")
		require.NoError(t, err)
		assert.Equal(t, model.CajaOpen, open.Status)
	})

	t.Run("caja close waits for in-flight attributed payments", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.WithinTx(ctx, func(tx repository.Tx) error {
			return tx.CreateCajaSession(ctx, &model.CajaSession{
				ID:             uuid.New(),
				Scope:          "pdv-W",
				OpenedBy:       "cashier-1",
				OpenedAt:       time.Now(),
				OpeningBalance: decimal.Zero,
				Status:         model.CajaOpen,
			})
		}))

		inFlight, release := make(chan struct{}), make(chan struct{})
		var g errgroup.Group
		g.Go(func() error {
			return store.WithinTx(ctx, func(tx repository.Tx) error {
				session, err := tx.ShareOpenCajaSession(ctx, "pdv-W")
				if err != nil {
					return err
				}
				id := session.ID
				err = tx.CreatePayments(ctx, []model.Payment{{
					ID:             uuid.New(),
					BillingID:      "B-W",
					SessionID:      "table-1",
					AmountPaid:     decimal.NewFromInt(40),
					PaymentMethod:  model.MethodCash,
					DiscountAmount: decimal.Zero,
					TipAmount:      decimal.Zero,
					CajaSessionID:  &id,
					CreatedAt:      time.Now(),
				}})
				close(inFlight)
				<-release
				return err
			})
		})
		<-inFlight

		var sums []repository.MethodSummary
		closed := make(chan error, 1)
		go func() {
			closed <- store.WithinTx(ctx, func(tx repository.Tx) error {
				session, err := tx.LockOpenCajaSession(ctx, "pdv-W")
				if err != nil {
					return err
				}
				if sums, err = tx.SumPaymentsByMethod(ctx, session.ID); err != nil {
					return err
				}
				session.Status = model.CajaClosed
				return tx.UpdateCajaSession(ctx, session)
			})
		}()

		select {
		case err := <-closed:
			t.Fatalf("close finished while a payment held the session: %v", err)
		case <-time.After(300 * time.Millisecond):
		}
		close(release)
		require.NoError(t, g.Wait())
		require.NoError(t, <-closed)

		require.Len(t, sums, 1)
		assert.True(t, sums[0].Total.Equal(decimal.NewFromInt(40)))

		// once closed, new money movements find no session to attach to
		err := store.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := tx.ShareOpenCajaSession(ctx, "pdv-W")
			return err
		})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("rollback leaves no trace", func(t *testing.T) {
		ctx := context.Background()
		boom := errors.New("boom")
		err := store.WithinTx(ctx, func(tx repository.Tx) error {
			if _, err := tx.LockLedger(ctx, "B-R", model.NewBillLedger("B-R", "s", decimal.NewFromInt(10))); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = store.FindLedger(ctx, "B-R")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("audit log paging", func(t *testing.T) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, store.WithinTx(ctx, func(tx repository.Tx) error {
				return tx.AppendAuditLog(ctx, &model.AuditLogEntry{
					ID:        uuid.New(),
					BillingID: "B-A",
					Action:    model.ActionRegisterPayment,
					CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
				})
			}))
		}
		entries, total, err := store.ListAuditLogs(ctx, "B-A", 0, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, entries, 2)
		assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
	})
}
