package middleware

import (
	"strconv"

	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/apperror"
	"acquiring-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimit applies the named token-bucket policy. The scope is the
// authenticated team when available, else the client IP.
func RateLimit(limiter ports.RateLimiter, metrics ports.MetricsSink, policy string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := c.GetString(CtxTeamSlug)
		if scope == "" {
			scope = c.ClientIP()
		}

		d := limiter.TryAcquire(policy, scope, 1)
		if !d.Allowed {
			if metrics != nil {
				metrics.IncRateLimited(policy)
			}
			retryAfter := d.RetryAfter.Seconds()
			if retryAfter < 1 {
				// Retry-After is whole seconds; round sub-second waits up.
				c.Header("Retry-After", "1")
			} else {
				c.Header("Retry-After", strconv.FormatInt(int64(retryAfter+0.5), 10))
			}
			log.Warn().
				Str("policy", policy).
				Str("scope", scope).
				Dur("retry_after", d.RetryAfter).
				Msg("request rate limited")
			response.Error(c, apperror.ErrRateLimited())
			c.Abort()
			return
		}
		c.Next()
	}
}
