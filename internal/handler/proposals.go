package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ibrl/internal/service"
)

type ProposalsHandler struct {
	Proposals *service.ProposalService
}

func (h *ProposalsHandler) Register(r *gin.RouterGroup) {
	r.GET("/proposals", h.list)
	r.GET("/proposals/:id", h.get)
	r.POST("/proposals/:id/decision", h.decide)
	r.POST("/proposals/:id/refresh", h.refresh)
	r.GET("/approvals", h.approvals)
}

// @Summary List proposals
// @Tags proposals
// @Produce json
// @Param owner query string false "wallet owner when auth is disabled"
// @Param status query string false "PENDING_APPROVAL, SENT or DENIED"
// @Param limit query int false "limit (max 200)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/proposals [get]
func (h *ProposalsHandler) list(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	limit := clampLimit(intQuery(c, "limit", 50), 50, 200)
	offset := intQuery(c, "offset", 0)
	items, total, err := h.Proposals.List(c.Request.Context(), owner, stringQuery(c, "status"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, proposalViews(h.Proposals, items), paginationMeta(limit, offset, total))
}

// @Summary Get a proposal
// @Tags proposals
// @Produce json
// @Param id path string true "proposal id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/proposals/{id} [get]
func (h *ProposalsHandler) get(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	item, err := h.Proposals.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, proposalView(h.Proposals, item), nil)
}

type decisionRequest struct {
	Owner     string  `json:"owner"`
	Decision  string  `json:"decision"`
	Signature *string `json:"signature"`
}

// @Summary Record the owner's decision
// @Description SENT with the transaction signature, or DENIED. Deciding twice returns the current state.
// @Tags proposals
// @Accept json
// @Produce json
// @Param id path string true "proposal id"
// @Param body body decisionRequest true "decision"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/proposals/{id}/decision [post]
func (h *ProposalsHandler) decide(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	owner, ok := requestOwner(c, req.Owner)
	if !ok {
		return
	}
	res, err := h.Proposals.Decide(c.Request.Context(), owner, c.Param("id"), strings.TrimSpace(req.Decision), req.Signature)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, proposalView(h.Proposals, res.Proposal), map[string]any{"applied": res.Applied})
}

type ownerRequest struct {
	Owner string `json:"owner"`
}

// @Summary Rebuild a pending proposal
// @Tags proposals
// @Produce json
// @Param id path string true "proposal id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 422 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/proposals/{id}/refresh [post]
func (h *ProposalsHandler) refresh(c *gin.Context) {
	var req ownerRequest
	_ = c.ShouldBindJSON(&req)
	owner, ok := requestOwner(c, req.Owner)
	if !ok {
		return
	}
	res, err := h.Proposals.Refresh(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, proposalView(h.Proposals, res.Proposal), map[string]any{
		"refreshed": res.Refreshed,
		"message":   res.Message,
	})
}

// @Summary Pending approvals
// @Tags proposals
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v1/approvals [get]
func (h *ProposalsHandler) approvals(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	items, err := h.Proposals.Pending(c.Request.Context(), owner, 20)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, proposalViews(h.Proposals, items), map[string]any{"total": len(items)})
}
