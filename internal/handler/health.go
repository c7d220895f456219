package handler

import (
	"context"
	"net/http"
	"time"

	"blendpos-ledger/internal/infra"
	"blendpos-ledger/internal/repository"
	"blendpos-ledger/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Health returns a JSON health check response.
// Storage is required; Redis and SMTP are reported but only Redis, when
// configured, can fail the check.
func Health(store repository.Store, rdb *redis.Client, mailer *infra.Mailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		body := gin.H{}
		healthy := true

		body["storage"] = "connected"
		if store.Ping(ctx) != nil {
			body["storage"] = "error"
			healthy = false
		}

		body["redis"] = "disabled"
		if rdb != nil {
			body["redis"] = "connected"
			if rdb.Ping(ctx).Err() != nil {
				body["redis"] = "error"
				healthy = false
			} else if n, err := worker.DLQLength(ctx, rdb, worker.QueueCajaReport); err == nil {
				body["dlq_caja_report"] = n
			}
		}

		body["smtp"] = "disabled"
		if mailer.Configured() {
			body["smtp"] = mailer.BreakerState().String()
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		body["ok"] = healthy
		c.JSON(status, body)
	}
}
