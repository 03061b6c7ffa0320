package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

const actorKey = "actor"

// loggingMiddleware logs one line per request
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// authMiddleware resolves the bearer token into an actor. The stream
// endpoint also accepts ?access_token= since browsers cannot set headers
// on an EventSource.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok && c.Request.Method == http.MethodGet && strings.HasSuffix(c.Request.URL.Path, "/events/stream") {
			token = c.Query("access_token")
			ok = token != ""
		}
		if !ok {
			s.respondError(c, apperr.Unauthorized("authentication required"))
			c.Abort()
			return
		}

		actor, err := s.identity.Authenticate(c.Request.Context(), token)
		if err != nil || !actor.IsAuthenticated() {
			s.respondError(c, apperr.Unauthorized("invalid credentials"))
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// actorFrom returns the actor set by authMiddleware
func actorFrom(c *gin.Context) role.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(role.Actor); ok {
			return actor
		}
	}
	return role.Actor{}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
