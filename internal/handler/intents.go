package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ibrl/internal/service"
)

type IntentsHandler struct {
	Intents   *service.IntentService
	Proposals *service.ProposalService
}

func (h *IntentsHandler) Register(r *gin.RouterGroup) {
	r.POST("/intents", h.handle)
}

type intentRequest struct {
	Owner   string `json:"owner"`
	Prompt  string `json:"prompt"`
	Execute bool   `json:"execute"`
}

type intentResponse struct {
	*service.IntentResult
	Proposal   *ProposalView   `json:"proposal,omitempty"`
	Automation *AutomationView `json:"automation,omitempty"`
}

// @Summary Handle a natural-language request
// @Description Chat and portfolio questions are answered. Trades become proposals and automations are armed only when execute is true; otherwise the policy gate runs as a preview.
// @Tags intents
// @Accept json
// @Produce json
// @Param body body intentRequest true "prompt"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 422 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/intents [post]
func (h *IntentsHandler) handle(c *gin.Context) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	owner, ok := requestOwner(c, req.Owner)
	if !ok {
		return
	}
	res, err := h.Intents.Handle(c.Request.Context(), owner, req.Prompt, req.Execute)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, intentResponse{
		IntentResult: res,
		Proposal:     proposalView(h.Proposals, res.Proposal),
		Automation:   automationView(res.Automation),
	}, nil)
}
