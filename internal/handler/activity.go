package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ibrl/internal/service"
)

type ActivityHandler struct {
	Activity  *service.ActivityService
	Portfolio *service.PortfolioService
	Prices    *service.PriceService
	Engine    *service.ProposalEngine
}

func (h *ActivityHandler) Register(r *gin.RouterGroup) {
	r.GET("/activity", h.activity)
	r.GET("/history", h.history)
	r.GET("/portfolio", h.portfolio)
	r.POST("/autonomy/run", h.run)
}

// RegisterPublic exposes routes that need no owner.
func (h *ActivityHandler) RegisterPublic(r *gin.RouterGroup) {
	r.GET("/price", h.price)
}

// @Summary Recent activity
// @Tags activity
// @Produce json
// @Param hours query int false "window in hours (default 6)"
// @Success 200 {object} apiResponse
// @Router /api/v1/activity [get]
func (h *ActivityHandler) activity(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	window := time.Duration(intQuery(c, "hours", 6)) * time.Hour
	sum, err := h.Activity.Summary(c.Request.Context(), owner, window)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, sum, nil)
}

// @Summary Interaction history
// @Tags activity
// @Produce json
// @Param limit query int false "limit (max 200)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/history [get]
func (h *ActivityHandler) history(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	limit := clampLimit(intQuery(c, "limit", 50), 50, 200)
	offset := intQuery(c, "offset", 0)
	items, total, err := h.Activity.History(c.Request.Context(), owner, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"id":        it.ID,
			"prompt":    it.Prompt,
			"execute":   it.Execute,
			"ok":        it.OK,
			"kind":      it.Kind,
			"source":    it.Source,
			"payload":   raw(it.Payload),
			"createdAt": it.CreatedAt,
		})
	}
	Ok(c, out, paginationMeta(limit, offset, total))
}

// @Summary Wallet snapshot
// @Tags activity
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/portfolio [get]
func (h *ActivityHandler) portfolio(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	snap, err := h.Portfolio.Snapshot(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, snap, nil)
}

// @Summary SOL/USD price
// @Tags activity
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/price [get]
func (h *ActivityHandler) price(c *gin.Context) {
	q, err := h.Prices.Current(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, q, nil)
}

// @Summary Evaluate one owner now
// @Description Runs the automation and detector pass for the owner outside the schedule.
// @Tags activity
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v1/autonomy/run [post]
func (h *ActivityHandler) run(c *gin.Context) {
	var req ownerRequest
	_ = c.ShouldBindJSON(&req)
	owner, ok := requestOwner(c, req.Owner)
	if !ok {
		return
	}
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	Ok(c, h.Engine.RunOwner(c.Request.Context(), owner), nil)
}
