package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aescanero/capo/internal/ratelimiter"
	"github.com/gin-gonic/gin"
)

// TenantHeader carries the calling tenant's id
const TenantHeader = "X-Tenant-ID"

const tenantKey = "tenant_id"

// corsMiddleware allows browser clients from any origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+TenantHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// tenantMiddleware parses the tenant header. A missing header is tenant 0.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(TenantHeader))
		tenantID := 0
		if raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				abortWithError(c, http.StatusBadRequest, "INVALID_TENANT", TenantHeader+" must be an integer", raw)
				return
			}
			tenantID = id
		}

		c.Set(tenantKey, tenantID)
		c.Next()
	}
}

// rateLimitMiddleware rejects tenants that exceed their request budget
func rateLimitMiddleware(limiter *ratelimiter.TenantLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(tenantFrom(c), time.Now()) {
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "tenant request rate exceeded", nil)
			return
		}
		c.Next()
	}
}

func tenantFrom(c *gin.Context) int {
	return c.GetInt(tenantKey)
}
