package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/crowdfund/pkg/log"
)

// Limiter is satisfied by *redis_rate.Limiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

// rateLimit throttles each client ip to perMinute requests. Limiter failures
// let the request through.
func rateLimit(limiter Limiter, perMinute int) gin.HandlerFunc {
	limit := redis_rate.PerMinute(perMinute)
	return func(ctx *gin.Context) {
		res, err := limiter.Allow(ctx.Request.Context(), "crowdfund:api:"+ctx.ClientIP(), limit)
		if err != nil {
			log.Warnf("rate limiter unavailable: %v", err)
			ctx.Next()
			return
		}
		ctx.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed == 0 {
			ctx.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		ctx.Next()
	}
}
