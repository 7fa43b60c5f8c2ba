package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"tradeflow/internal/api"
	"tradeflow/internal/repository"
	"tradeflow/internal/service"
)

type NotificationHandler struct {
	Service *service.NotificationService
}

func (h *NotificationHandler) Register(r *gin.Engine) {
	group := r.Group(api.Prefix + "/notifications")
	group.GET("", h.list)
	group.POST("/:id/dismiss", h.dismiss)
}

// @Summary Notifications addressed to the caller
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param trade_id query string false "trade filter"
// @Param include_dismissed query bool false "include dismissed notifications"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/notifications [get]
func (h *NotificationHandler) list(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Service.List(c.Request.Context(), sc.User, repository.ListNotificationsParams{
		TradeID:          strings.TrimSpace(c.Query("trade_id")),
		IncludeDismissed: boolQueryDefault(c, "include_dismissed", false),
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]api.Notification, 0, len(items))
	for i := range items {
		out = append(out, toNotification(&items[i], sc.User.ID))
	}
	Ok(c, out, paginationMeta(limit, offset, len(out)))
}

// @Summary Dismiss a notification
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "notification id"
// @Success 200 {object} apiResponse
// @Router /api/v1/notifications/{id}/dismiss [post]
func (h *NotificationHandler) dismiss(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.Service.Dismiss(c.Request.Context(), sc.User, id); err != nil {
		fail(c, err)
		return
	}
	Ok(c, map[string]any{"id": id, "dismissed": true}, nil)
}
