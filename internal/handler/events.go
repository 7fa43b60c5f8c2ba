package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	eventBuffer    = 32
	eventPingEvery = 30 * time.Second
	eventWriteWait = 10 * time.Second
)

// @Summary Stream change events of a trade over websocket
// @Tags trades
// @Security BearerAuth
// @Param id path string true "trade id"
// @Param token query string false "session token when headers can't be set"
// @Success 101
// @Router /api/v1/trades/{id}/events [get]
func (h *TradeHandler) events(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	tradeID := c.Param("id")
	if _, _, err := h.Service.Get(c.Request.Context(), sc, tradeID); err != nil {
		fail(c, err)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket accept failed", zap.String("trade_id", tradeID), zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch, cancel := h.Hub.Subscribe(tradeID, eventBuffer)
	defer cancel()

	// the client never sends; CloseRead handles control frames and cancels on close
	ctx := conn.CloseRead(c.Request.Context())
	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, eventWriteWait)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, eventWriteWait)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				if h.Logger != nil {
					h.Logger.Debug("event write failed", zap.String("trade_id", tradeID), zap.Error(err))
				}
				return
			}
		}
	}
}
