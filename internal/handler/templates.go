package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeflow/internal/api"
	"tradeflow/internal/service"
)

type TemplateHandler struct {
	Service *service.TemplateService
}

func (h *TemplateHandler) Register(r *gin.Engine) {
	group := r.Group(api.Prefix + "/templates")
	group.GET("", h.list)
	group.POST("", h.create)
}

// @Summary List stage templates
// @Tags templates
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/v1/templates [get]
func (h *TemplateHandler) list(c *gin.Context) {
	if _, ok := mustSession(c); !ok {
		return
	}
	items, err := h.Service.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]api.Template, 0, len(items))
	for i := range items {
		t, err := toTemplate(&items[i])
		if err != nil {
			fail(c, err)
			return
		}
		out = append(out, t)
	}
	Ok(c, out, nil)
}

// @Summary Create or replace a stage template
// @Tags templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body api.CreateTemplateRequest true "template"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v1/templates [post]
func (h *TemplateHandler) create(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	var req api.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	sanitizeTemplate(&req)
	item, err := h.Service.Create(c.Request.Context(), sc.User, req)
	if err != nil {
		fail(c, err)
		return
	}
	t, err := toTemplate(item)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, t, nil)
}
