package paas

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// AuditMiddleware records every state-changing API call after it completes.
func AuditMiddleware(p *Client) gin.HandlerFunc {
	if p == nil {
		return func(c *gin.Context) { c.Next() }
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
			"path":     c.FullPath(),
			"status":   status,
			"duration": time.Since(start).String(),
		}
		if owner, ok := c.Get("owner"); ok {
			details["owner"] = owner
		}
		p.Audit(c.Request.Context(), "ibrl_http_write", levelFromStatus(status), details)
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
