package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blendpos-ledger/internal/config"
	"blendpos-ledger/internal/infra"
	"blendpos-ledger/internal/repository"
	"blendpos-ledger/internal/router"
	"blendpos-ledger/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in dev, JSON in prod
	if cfg.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to open storage")
	}

	// Redis is optional: without it no report jobs are queued and the
	// reconcile cron runs without a distributed lock.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailer := infra.NewMailer(cfg)
	deps := router.Deps{Store: store, Redis: rdb, Mailer: mailer}
	svcs := router.NewServices(cfg, deps)

	if rdb != nil {
		reportWorker := worker.NewCajaReportWorker(mailer, cfg.ReportStoragePath, cfg.ReportEmailTo)
		worker.StartWorkerPool(ctx, rdb, &worker.WorkerHandlers{
			CajaReport: reportWorker.Process,
		}, cfg.WorkerPoolSize)
	}

	worker.StartReconcileCron(ctx, worker.ReconcileCronConfig{
		Ledgers:    store,
		Reconciler: svcs.Ledger,
		Locker:     infra.NewLocker(rdb),
		Interval:   cfg.ReconcileInterval(),
		BatchSize:  cfg.ReconcileBatchSize,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router.New(cfg, deps, svcs),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Str("storage", cfg.StorageDriver).Msgf("ledger service listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info().Msg("server exited")
}

// openStore picks the storage backend once at startup.
func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StorageDriver {
	case "postgres":
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repository.NewGormStore(db), nil
	case "memory":
		log.Warn().Msg("memory storage: single instance only, data is lost on restart")
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (want postgres or memory)", cfg.StorageDriver)
	}
}
