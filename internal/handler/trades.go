package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradeflow/internal/api"
	"tradeflow/internal/events"
	"tradeflow/internal/repository"
	"tradeflow/internal/service"
	"tradeflow/internal/workflow"
)

type TradeHandler struct {
	Service *service.TradeService
	Hub     *events.Hub
	Logger  *zap.Logger

	// OriginPatterns lists the browser origins allowed to open the event
	// stream. Same-origin and non-browser clients are always accepted.
	OriginPatterns []string

	Now func() time.Time
}

func (h *TradeHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *TradeHandler) Register(r *gin.Engine) {
	group := r.Group(api.Prefix)
	group.GET("/trades", h.list)
	group.POST("/trades", h.create)
	group.GET("/trades/:id", h.get)
	group.GET("/trades/:id/txlogs", h.txLogs)
	group.GET("/trades/:id/events", h.events)
	for _, route := range api.Routes {
		group.Handle(route.Method, route.Pattern, h.mutate(route.Op))
	}
}

// @Summary List trades of the caller
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param open query bool false "only trades not yet closed"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades [get]
func (h *TradeHandler) list(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Service.List(c.Request.Context(), sc, repository.ListTradesParams{
		OpenOnly: boolQueryDefault(c, "open", false),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]api.TradeSummary, 0, len(items))
	for i := range items {
		out = append(out, toTradeSummary(&items[i]))
	}
	Ok(c, out, paginationMeta(limit, offset, len(out)))
}

// @Summary Create a trade
// @Tags trades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body api.CreateTradeRequest true "trade"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 422 {object} apiResponse
// @Router /api/v1/trades [post]
func (h *TradeHandler) create(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	var req api.CreateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Name = cleanText(req.Name)
	req.Description = cleanText(req.Description)
	t, err := h.Service.Create(c.Request.Context(), sc.User, req)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, api.TradeDetail{Trade: t, View: workflow.Derive(t, h.now()), Version: 1}, nil)
}

// @Summary Load a trade with its derived view
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param id path string true "trade id"
// @Success 200 {object} apiResponse
// @Failure 403 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/trades/{id} [get]
func (h *TradeHandler) get(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	t, version, err := h.Service.Get(c.Request.Context(), sc, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, api.TradeDetail{Trade: t, View: workflow.Derive(t, h.now()), Version: version}, nil)
}

// @Summary Ledger transactions recorded for a trade
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param id path string true "trade id"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades/{id}/txlogs [get]
func (h *TradeHandler) txLogs(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	items, err := h.Service.TxLogs(c.Request.Context(), sc, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, nil)
}

// mutate serves one signed operation. Target indexes always come from the
// URL; the body supplies arguments, the document hash and the ledger token.
func (h *TradeHandler) mutate(op workflow.Op) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := mustSession(c)
		if !ok {
			return
		}
		var mu workflow.Mutation
		if err := c.ShouldBindJSON(&mu); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
		path, err := pathFor(c, op, mu)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		mu.Op = op
		mu.Path = path
		if strings.TrimSpace(mu.Token) == "" {
			Error(c, http.StatusUnauthorized, "signed ledger token required", nil)
			return
		}
		sanitizeMutation(&mu)

		receipt, t, version, err := h.Service.Mutate(c.Request.Context(), sc, mu)
		if err != nil {
			if h.Logger != nil {
				h.Logger.Debug("mutation refused",
					zap.String("op", string(op)),
					zap.String("path", path.String()),
					zap.String("user_id", sc.User.ID),
					zap.Error(err),
				)
			}
			fail(c, err)
			return
		}
		Ok(c, api.MutationResult{Receipt: receipt, View: workflow.Derive(t, h.now()), Version: version}, nil)
	}
}

type pathError string

func (e pathError) Error() string { return string(e) }

func intParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		return 0, pathError("invalid " + name + " index")
	}
	return v, nil
}

func pathFor(c *gin.Context, op workflow.Op, mu workflow.Mutation) (workflow.Path, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return workflow.Path{}, pathError("trade id required")
	}
	switch op {
	case workflow.OpAddStage, workflow.OpRequestTradeClose, workflow.OpApproveTradeClose, workflow.OpRejectTradeClose:
		return workflow.TradePath(id), nil
	}
	stage, err := intParam(c, "stage")
	if err != nil {
		return workflow.Path{}, err
	}
	switch op {
	case workflow.OpAddDocument:
		if mu.Document == nil {
			return workflow.Path{}, pathError("document required")
		}
		return workflow.DocPath(id, stage, -1, mu.Document.Hash), nil
	case workflow.OpApproveDocument, workflow.OpRejectDocument:
		doc, err := intParam(c, "doc")
		if err != nil {
			return workflow.Path{}, err
		}
		return workflow.DocPath(id, stage, doc, mu.Path.Hash), nil
	}
	return workflow.StagePath(id, stage), nil
}
