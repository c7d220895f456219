package router

import (
	"time"

	"blendpos-ledger/internal/config"
	"blendpos-ledger/internal/handler"
	"blendpos-ledger/internal/infra"
	"blendpos-ledger/internal/middleware"
	"blendpos-ledger/internal/repository"
	"blendpos-ledger/internal/service"
	"blendpos-ledger/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Deps are the process-wide dependencies built in cmd/server.
// Redis and Mailer may be nil/unconfigured.
type Deps struct {
	Store  repository.Store
	Redis  *redis.Client
	Mailer *infra.Mailer
}

// Services builds the service graph on top of deps. cmd/server reuses the
// ledger service for the reconcile cron.
type Services struct {
	Audit   service.AuditService
	Ledger  service.LedgerService
	Payment service.PaymentService
	Refund  service.RefundService
	Caja    service.CajaService
}

func NewServices(cfg *config.Config, deps Deps) *Services {
	var dispatcher *worker.Dispatcher
	if deps.Redis != nil {
		dispatcher = worker.NewDispatcher(deps.Redis)
	}

	audit := service.NewAuditService(deps.Store)
	ledger := service.NewLedgerService(deps.Store, audit, cfg.TxTimeout())
	return &Services{
		Audit:   audit,
		Ledger:  ledger,
		Payment: service.NewPaymentService(deps.Store, ledger, audit, cfg.TxTimeout()),
		Refund:  service.NewRefundService(deps.Store, ledger, audit, cfg.TxTimeout()),
		Caja:    service.NewCajaService(deps.Store, audit, dispatcher, cfg),
	}
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Store ← DB/memory
func New(cfg *config.Config, deps Deps, svcs *Services) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.Env, cfg.CORSAllowedOrigins))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(cfg.RateLimitPerMinute, time.Minute))

	// ── Handlers ─────────────────────────────────────────────────────────────
	ledgerH := handler.NewLedgerHandler(svcs.Ledger, svcs.Audit)
	paymentsH := handler.NewPaymentsHandler(svcs.Payment, svcs.Refund)
	cajaH := handler.NewCajaHandler(svcs.Caja)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(deps.Store, deps.Redis, deps.Mailer))

	anyRole := middleware.RequireRole(middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleAdmin)
	managers := middleware.RequireRole(middleware.RoleSupervisor, middleware.RoleAdmin)

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		v1.POST("/payments", anyRole, paymentsH.RegisterPayment)
		// Refunds move money back out: supervisor or admin only
		v1.POST("/payments/:id/refunds", managers, paymentsH.ProcessRefund)
		v1.GET("/payments/:id/refunds", anyRole, paymentsH.GetRefundsByPayment)

		bills := v1.Group("/bills/:billing_id")
		{
			bills.GET("/ledger", anyRole, ledgerH.GetLedger)
			bills.POST("/discounts", anyRole, ledgerH.ApplyDiscount)
			bills.POST("/close", anyRole, ledgerH.CloseBill)
			bills.GET("/payments", anyRole, paymentsH.ListPayments)
			bills.GET("/refunds", anyRole, paymentsH.GetRefundsByBilling)
			bills.GET("/logs", managers, ledgerH.ListLogs)
			bills.GET("/reconcile", managers, ledgerH.Reconcile)
		}

		caja := v1.Group("/caja")
		{
			caja.POST("/open", anyRole, cajaH.Open)
			caja.POST("/close", anyRole, cajaH.Close)
			caja.GET("/active", anyRole, cajaH.GetActive)
			caja.GET("/:id/report", anyRole, cajaH.GetReport)
			caja.GET("/:id/report.pdf", anyRole, cajaH.DownloadReportPDF)
			caja.GET("/history", managers, cajaH.History)
			caja.GET("/history/export", managers, cajaH.ExportHistory)
		}
	}

	// Swagger UI, only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
