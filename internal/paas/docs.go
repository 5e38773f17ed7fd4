package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# IBRL Agent

Autonomous proposal engine for a SOL/USDC wallet. The agent never signs: every swap it
builds is stored as a PENDING_APPROVAL proposal until the owner sends or denies it.

## Auth

When auth is enabled, /api/* routes require a Bearer token whose "owner" claim is the
wallet address. Otherwise the owner is taken from the "owner" query or body field.
Health endpoints are public.

## Routes

- GET /healthz
- GET /readyz
- GET /swagger/index.html
- GET /api/v1/price
- POST /api/v1/intents
- GET|POST /api/v1/automations
- PATCH|DELETE /api/v1/automations/:id
- GET /api/v1/proposals
- GET /api/v1/proposals/:id
- POST /api/v1/proposals/:id/decision
- POST /api/v1/proposals/:id/refresh
- GET /api/v1/approvals
- GET /api/v1/activity
- GET /api/v1/history
- GET /api/v1/portfolio
- POST /api/v1/autonomy/run
- GET /api/v1/system-settings
- GET|PUT /api/v1/system-settings/:key
`)
	})
}
