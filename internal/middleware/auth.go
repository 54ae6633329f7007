// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, request ids, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any
// signature verification or DB work. Auth populates the tenant identity that
// handlers read from the context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tenant-registry/tenant-registry/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	TenantIDKey   = "tenant_id"
	TenantNameKey = "tenant_name"
	ClaimsKey     = "claims"
)

// AuthMiddleware validates the Bearer JWT and stores the authenticated tenant
// identity in the request context. It performs no database lookup: the token
// is self-contained, and ownership checks against the target resource are the
// handler's job.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(TenantIDKey, claims.TenantID)
		c.Set(TenantNameKey, claims.TenantName)

		c.Next()
	}
}

// AuthenticatedTenantID returns the tenant id set by AuthMiddleware, or ""
// when the request is unauthenticated.
func AuthenticatedTenantID(c *gin.Context) string {
	if v, exists := c.Get(TenantIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
