package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Tradeflow API

Trades move through stages. Every change is a signed operation: the client
signs a ledger descriptor with its key and submits it together with the
arguments. The server re-checks the operation against the stored trade,
verifies the signature and persists the result.

## Auth

- POST /api/v1/auth/register with {user_id, name, address, timestamp, signature}
- POST /api/v1/auth/login with {user_id, timestamp, signature}

The signature covers "tradeflow-login:<user_id>:<timestamp>". Send the returned
token as "Authorization: Bearer <token>". Moderators add "X-Moderator: 1".

## Routes

- GET /api/v1/me
- GET|POST /api/v1/trades
- GET /api/v1/trades/:id
- GET /api/v1/trades/:id/txlogs
- GET /api/v1/trades/:id/events (websocket, ?token= accepted)
- POST /api/v1/trades/:id/stage-requests[/:idx/approve|reject]
- POST /api/v1/trades/:id/stages/:stage/docs[/:doc/approve|reject]
- POST /api/v1/trades/:id/stages/:stage/close[/approve|reject]
- POST /api/v1/trades/:id/stages/:stage/delete[/approve|reject]
- POST /api/v1/trades/:id/stages/:stage/expiry
- POST /api/v1/trades/:id/close[/approve|reject]
- GET|POST /api/v1/templates
- GET|POST /api/v1/offers, POST /api/v1/offers/:id/close
- GET /api/v1/notifications, POST /api/v1/notifications/:id/dismiss
- GET /healthz, GET /readyz, GET /swagger/index.html
`)
	})
}
