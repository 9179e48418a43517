package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ortaizi/sync-service/internal/metrics"
	"github.com/ortaizi/sync-service/internal/security"
)

const (
	authUserKey  = "auth_user"
	requestIDKey = "X-Request-ID"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDKey)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDKey, id)
		c.Next()
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.InFlight.Inc()
		start := time.Now()

		c.Next()

		metrics.InFlight.Dec()
		metrics.ReqDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// JWTAuth validates the bearer token and stashes its claims for handlers.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := security.ParseAccess(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(authUserKey, claims)
		c.Next()
	}
}

// RequireDualStage gates routes that need verified institution credentials,
// not just provider identity.
func RequireDualStage() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		if !claims.IsDualStageComplete || claims.InstitutionID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "institution sign-in required"})
			return
		}
		c.Next()
	}
}

func mustClaims(c *gin.Context) *security.Claims {
	v, _ := c.Get(authUserKey)
	return v.(*security.Claims)
}
