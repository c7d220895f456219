package middleware

import (
	"net/http"
	"sync"
	"time"

	"blendpos-ledger/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateWindow counts requests from one client IP inside a fixed window.
type rateWindow struct {
	mu    sync.Mutex
	count int
	until time.Time
}

// ipLimiter is a per-IP fixed window limiter. Expired windows are swept by a
// background goroutine tied to the limiter.
type ipLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*rateWindow
}

// RateLimiter allows limit requests per window per client IP. A limit <= 0
// disables it.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	l := &ipLimiter{limit: limit, window: window, clients: make(map[string]*rateWindow)}
	go l.sweep(5 * time.Minute)

	return func(c *gin.Context) {
		allowed, until := l.allow(c.ClientIP(), time.Now())
		if !allowed {
			c.Header("Retry-After", until.UTC().Format(http.TimeFormat))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("RATE_LIMITED", "too many requests, try again shortly"))
			return
		}
		c.Next()
	}
}

func (l *ipLimiter) allow(ip string, now time.Time) (bool, time.Time) {
	l.mu.Lock()
	w, ok := l.clients[ip]
	if !ok {
		w = &rateWindow{}
		l.clients[ip] = w
	}
	l.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.After(w.until) {
		w.count = 0
		w.until = now.Add(l.window)
	}
	w.count++
	return w.count <= l.limit, w.until
}

func (l *ipLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for now := range ticker.C {
		l.mu.Lock()
		purged := 0
		for ip, w := range l.clients {
			w.mu.Lock()
			if now.After(w.until) {
				delete(l.clients, ip)
				purged++
			}
			w.mu.Unlock()
		}
		remaining := len(l.clients)
		l.mu.Unlock()

		if purged > 0 {
			log.Debug().Int("purged", purged).Int("remaining", remaining).Msg("rate limiter swept")
		}
	}
}
