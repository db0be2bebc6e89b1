// Package ratelimit throttles operations server clients.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"claimant-consumer/internal/config"
	"claimant-consumer/pkg/metrics"
)

const (
	maxClients = 1024
	clientTTL  = 10 * time.Minute
)

// perClient hands out one token bucket per client IP. Idle clients are
// forgotten after clientTTL, the least recent first when the cache is full.
type perClient struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rps      float64
	burst    int
}

func newPerClient(rps float64, burst int) *perClient {
	return &perClient{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, clientTTL),
		rps:      rps,
		burst:    burst,
	}
}

func (p *perClient) get(client string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.limiters.Add(client, l)
	return l
}

// Middleware limits each client IP. A disabled config lets everything through.
func Middleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	clients := newPerClient(cfg.RPS, burst)
	limit := strconv.FormatFloat(cfg.RPS, 'f', -1, 64)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		limiter := clients.get(clientIP)
		c.Header("X-RateLimit-Limit", limit)

		if !limiter.Allow() {
			metrics.IncOpsRequest(false)
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.IncOpsRequest(true)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(int(limiter.Tokens()), 0)))
		c.Next()
	}
}
