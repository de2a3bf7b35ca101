package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kcbuddy/kcbuddy/utils"
)

// KeyFunc derives the limiter bucket for a request. An empty key skips limiting.
type KeyFunc func(ctx *gin.Context) string

// ByIP buckets requests by client address.
func ByIP(ctx *gin.Context) string {
	return ctx.ClientIP()
}

// ByUser buckets requests by the authenticated caller. Must run after RequireAuth.
func ByUser(ctx *gin.Context) string {
	identity, ok := CurrentIdentity(ctx)
	if !ok {
		return ""
	}
	return identity.Role + ":" + strconv.FormatUint(uint64(identity.UserID), 10)
}

// RateLimit rejects requests with 429 once the bucket for keyFn is spent.
// Limiter backend errors are logged and the request is let through.
func RateLimit(limiter utils.Limiter, keyFn KeyFunc, log *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := keyFn(ctx)
		if key == "" {
			ctx.Next()
			return
		}

		allowed, err := limiter.Allow(ctx.Request.Context(), key)
		if err != nil && log != nil {
			log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		}
		if !allowed {
			utils.Fail(ctx, log, utils.ErrRateLimited)
			return
		}

		ctx.Next()
	}
}
