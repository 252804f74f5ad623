package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/observability"
)

// agentmeshClaims carries the subject the facade attributes audit entries
// to; the server only decodes tokens issued upstream, it never signs one.
type agentmeshClaims struct {
	jwt.RegisteredClaims
	Actor string `json:"actor"`
}

// AuthMiddleware decodes an optional bearer token to populate request_id
// and actor metadata on the gin context, mirroring the teacher's
// GinMiddleware shape without reimplementing its full rate-limited auth
// service — this server trusts its upstream gateway for authorization and
// only needs the identity claim for attribution.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := "anonymous"
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") && secret != "" {
			raw := strings.TrimPrefix(header, "Bearer ")
			claims := &agentmeshClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err == nil && claims.Actor != "" {
				actor = claims.Actor
			}
		}
		c.Set(contextKeyActor, actor)

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()
	}
}

const (
	contextKeyActor     = "agentmesh.actor"
	contextKeyRequestID = "agentmesh.request_id"
)

// RequestLogger logs every request's method, path, status and latency at
// info level, matching the teacher's RequestLogger middleware.
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// ErrorRecovery converts a panic inside a handler into a 500 envelope
// instead of crashing the process, the gin equivalent of the teacher's
// ErrorHandlerMiddleware + gin.Recovery combination.
func ErrorRecovery(logger observability.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered", map[string]interface{}{"panic": recovered})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"kind": "INTERNAL", "message": "internal server error"},
		})
	})
}
