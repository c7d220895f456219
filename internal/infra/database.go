package infra

import (
	"fmt"

	"blendpos-ledger/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, then runs
// RunMigrations so the ledger tables and their partial indexes exist.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		log.Warn().Err(err).Msg("database: failed to install otelgorm plugin")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates the ledger tables and applies the DDL that
// AutoMigrate cannot express. Safe to run on every start.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.BillLedger{},
		&model.Payment{},
		&model.Refund{},
		&model.AuditLogEntry{},
		&model.CajaSession{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate
// cannot handle on its own (partial indexes, composite lookups).
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// at most one open caja session per scope
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_caja_sessions_open_scope
		    ON caja_sessions (scope)
		    WHERE status = 'open'`,
		// idempotency lookup under the ledger lock
		`CREATE INDEX IF NOT EXISTS idx_payments_billing_idempotency
		    ON payments (billing_id, idempotency_key)
		    WHERE idempotency_key IS NOT NULL`,
		// ListLogs pages newest first per bill
		`CREATE INDEX IF NOT EXISTS idx_payment_logs_billing_created
		    ON payment_logs (billing_id, created_at DESC)`,
		// caja window aggregation
		`CREATE INDEX IF NOT EXISTS idx_payments_created_method
		    ON payments (created_at, payment_method)`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
