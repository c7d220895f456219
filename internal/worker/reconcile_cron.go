package worker

// reconcile_cron.go
// Background goroutine that re-derives the totals of recently touched ledgers
// from their payment and refund rows and logs every bill that drifted.
// With Redis configured, a redislock keeps multiple instances from doing the
// same sweep on the same tick.

import (
	"context"
	"errors"
	"time"

	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/repository"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog/log"
)

const reconcileLockKey = "lock:ledger_reconcile"

// Reconciler is satisfied by service.LedgerService.
type Reconciler interface {
	Reconcile(ctx context.Context, billingID string) (*dto.ReconcileResponse, error)
}

type ReconcileCronConfig struct {
	Ledgers    repository.Reader
	Reconciler Reconciler
	Locker     *redislock.Client // nil on single-instance deployments
	Interval   time.Duration
	BatchSize  int
}

// ReconcileResult summarises one sweep.
type ReconcileResult struct {
	Checked    int
	Mismatched []string
	Watermark  time.Time
}

// StartReconcileCron ticks every cfg.Interval and sweeps ledgers updated since
// the previous sweep. The first sweep covers the last interval only.
func StartReconcileCron(ctx context.Context, cfg ReconcileCronConfig) {
	if cfg.Interval <= 0 {
		log.Info().Msg("reconcile_cron: disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		watermark := time.Now().Add(-cfg.Interval)
		log.Info().Dur("interval", cfg.Interval).Msg("reconcile_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("reconcile_cron: shutting down")
				return
			case <-ticker.C:
				res, err := runLocked(ctx, cfg, watermark)
				if err != nil {
					log.Error().Err(err).Msg("reconcile_cron: sweep failed")
					continue
				}
				if res != nil {
					watermark = res.Watermark
				}
			}
		}
	}()
}

// runLocked returns (nil, nil) when another instance holds the sweep lock.
func runLocked(ctx context.Context, cfg ReconcileCronConfig, since time.Time) (*ReconcileResult, error) {
	if cfg.Locker == nil {
		return RunReconcileOnce(ctx, cfg, since)
	}
	lock, err := cfg.Locker.Obtain(ctx, reconcileLockKey, cfg.Interval, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		log.Debug().Msg("reconcile_cron: lock held elsewhere, skipping tick")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Msg("reconcile_cron: release lock")
		}
	}()
	return RunReconcileOnce(ctx, cfg, since)
}

// RunReconcileOnce checks up to BatchSize ledgers updated at or after since.
// The returned watermark is the newest updated_at checked, held back to the
// oldest ledger whose check failed so the next sweep retries it. It stays at
// since when the batch was empty.
func RunReconcileOnce(ctx context.Context, cfg ReconcileCronConfig, since time.Time) (*ReconcileResult, error) {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 200
	}
	ledgers, err := cfg.Ledgers.ListLedgersUpdatedSince(ctx, since, batch)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{Watermark: since}
	var oldestFailed *time.Time
	for _, l := range ledgers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		rep, err := cfg.Reconciler.Reconcile(ctx, l.BillingID)
		if err != nil {
			log.Error().Err(err).Str("billing_id", l.BillingID).Msg("reconcile_cron: reconcile failed")
			if oldestFailed == nil || l.UpdatedAt.Before(*oldestFailed) {
				at := l.UpdatedAt
				oldestFailed = &at
			}
			continue
		}
		res.Checked++
		if l.UpdatedAt.After(res.Watermark) {
			res.Watermark = l.UpdatedAt
		}
		if !rep.Balanced || !rep.StatusConsistent {
			res.Mismatched = append(res.Mismatched, l.BillingID)
			log.Error().
				Str("billing_id", l.BillingID).
				Str("ledger_paid", rep.LedgerPaid.String()).
				Str("computed_paid", rep.ComputedPaid.String()).
				Str("ledger_discount", rep.LedgerDiscount.String()).
				Str("computed_discount", rep.ComputedDiscount.String()).
				Bool("status_consistent", rep.StatusConsistent).
				Msg("reconcile_cron: ledger drift detected")
		}
	}

	if oldestFailed != nil && oldestFailed.Before(res.Watermark) {
		res.Watermark = *oldestFailed
	}

	if len(ledgers) > 0 {
		log.Info().Int("checked", res.Checked).Int("mismatched", len(res.Mismatched)).Msg("reconcile_cron: sweep done")
	}
	return res, nil
}
