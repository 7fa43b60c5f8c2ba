package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradeflow/internal/api"
	"tradeflow/internal/repository"
	"tradeflow/internal/service"
)

type OfferHandler struct {
	Service *service.OfferService
}

func (h *OfferHandler) Register(r *gin.Engine) {
	group := r.Group(api.Prefix + "/offers")
	group.GET("", h.list)
	group.POST("", h.create)
	group.POST("/:id/close", h.close)
}

// @Summary List open offers
// @Tags offers
// @Produce json
// @Security BearerAuth
// @Param commodity query string false "commodity filter"
// @Param mine query bool false "only offers created by the caller"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/offers [get]
func (h *OfferHandler) list(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOffersParams{
		Commodity: strings.TrimSpace(c.Query("commodity")),
		Limit:     limit,
		Offset:    offset,
	}
	if boolQueryDefault(c, "mine", false) {
		params.CreatedBy = sc.User.ID
	}
	items, err := h.Service.ListOpen(c.Request.Context(), params)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]api.Offer, 0, len(items))
	for i := range items {
		out = append(out, toOffer(&items[i]))
	}
	Ok(c, out, paginationMeta(limit, offset, len(out)))
}

// @Summary Publish an offer
// @Tags offers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body api.CreateOfferRequest true "offer"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v1/offers [post]
func (h *OfferHandler) create(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	var req api.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Commodity = cleanText(req.Commodity)
	req.Description = cleanText(req.Description)
	req.Unit = cleanText(req.Unit)
	item, err := h.Service.Create(c.Request.Context(), sc.User, req)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toOffer(item), nil)
}

// @Summary Close an offer
// @Tags offers
// @Produce json
// @Security BearerAuth
// @Param id path string true "offer id"
// @Success 200 {object} apiResponse
// @Failure 403 {object} apiResponse
// @Router /api/v1/offers/{id}/close [post]
func (h *OfferHandler) close(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	item, err := h.Service.Close(c.Request.Context(), sc.User, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, toOffer(item), nil)
}
