package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserIDKey is the gin context key the auth middleware stores the caller under.
const UserIDKey = "user_id"

// WriteMiddleware records every API write request, successful or not.
func WriteMiddleware(r Recorder, agent string, logger *zap.Logger) gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}
	agent = strings.TrimSpace(agent)
	if agent == "" {
		agent = "tradeflow"
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		method := strings.ToUpper(c.Request.Method)
		if !strings.HasPrefix(path, "/api/") {
			return
		}
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		details := map[string]any{
			"method":   method,
			"path":     path,
			"route":    c.FullPath(),
			"status":   status,
			"duration": time.Since(start).String(),
			"user_id":  c.GetString(UserIDKey),
		}
		if id := c.Param("id"); id != "" {
			details["trade_id"] = id
		}
		if len(c.Errors) > 0 {
			details["error"] = c.Errors.Last().Error()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := r.CreateLog(ctx, Entry{
			Agent:    agent,
			Action:   "tradeflow_http_write",
			Level:    levelFromStatus(status),
			Details:  details,
			Metadata: map[string]any{},
		})
		if err != nil && logger != nil {
			logger.Debug("audit log failed", zap.Error(err))
		}
	}
}

func levelFromStatus(status int) string {
	if status >= 500 {
		return "error"
	}
	if status >= 400 {
		return "warn"
	}
	return "info"
}
