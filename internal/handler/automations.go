package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ibrl/internal/errs"
	"ibrl/internal/intent"
	"ibrl/internal/service"
)

type AutomationsHandler struct {
	Automations *service.AutomationService
	Intents     *service.IntentService
}

func (h *AutomationsHandler) Register(r *gin.RouterGroup) {
	g := r.Group("/automations")
	g.GET("", h.list)
	g.POST("", h.create)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

// @Summary List automations
// @Tags automations
// @Produce json
// @Param status query string false "ACTIVE or PAUSED"
// @Param limit query int false "limit (max 200)"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/automations [get]
func (h *AutomationsHandler) list(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	limit := clampLimit(intQuery(c, "limit", 50), 50, 200)
	offset := intQuery(c, "offset", 0)
	items, total, err := h.Automations.List(c.Request.Context(), owner, stringQuery(c, "status"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]*AutomationView, 0, len(items))
	for i := range items {
		out = append(out, automationView(&items[i]))
	}
	Ok(c, out, paginationMeta(limit, offset, total))
}

type createAutomationRequest struct {
	Owner  string          `json:"owner"`
	Intent json.RawMessage `json:"intent"`
	Prompt string          `json:"prompt"`
}

// @Summary Arm an automation
// @Description Accepts an encoded PRICE_TRIGGER_EXIT, PRICE_TRIGGER_ENTRY or DCA_SWAP intent, or a prompt that parses to one.
// @Tags automations
// @Accept json
// @Produce json
// @Param body body createAutomationRequest true "intent or prompt"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 422 {object} apiResponse
// @Router /api/v1/automations [post]
func (h *AutomationsHandler) create(c *gin.Context) {
	var req createAutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	owner, ok := requestOwner(c, req.Owner)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var in intent.Intent
	switch {
	case len(req.Intent) > 0 && string(req.Intent) != "null":
		parsed, err := intent.Unmarshal(req.Intent)
		if err != nil {
			fail(c, err)
			return
		}
		in = parsed
	case strings.TrimSpace(req.Prompt) != "" && h.Intents != nil:
		in, _ = h.Intents.Parse(ctx, req.Prompt)
	default:
		fail(c, errs.Validation("intent", "intent or prompt required"))
		return
	}

	item, err := h.Automations.Create(ctx, owner, in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, automationView(item), nil)
}

type automationActionRequest struct {
	Owner  string `json:"owner"`
	Action string `json:"action"`
}

// @Summary Pause or resume an automation
// @Tags automations
// @Accept json
// @Produce json
// @Param id path string true "automation id"
// @Param body body automationActionRequest true "PAUSE or RESUME"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/automations/{id} [patch]
func (h *AutomationsHandler) update(c *gin.Context) {
	var req automationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	owner, ok := requestOwner(c, req.Owner)
	if !ok {
		return
	}
	item, err := h.Automations.Apply(c.Request.Context(), owner, c.Param("id"), req.Action)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, automationView(item), nil)
}

// @Summary Delete an automation
// @Description Proposals it produced are kept and detached.
// @Tags automations
// @Produce json
// @Param id path string true "automation id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/automations/{id} [delete]
func (h *AutomationsHandler) delete(c *gin.Context) {
	owner, ok := requestOwner(c, "")
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.Automations.Delete(c.Request.Context(), owner, id); err != nil {
		fail(c, err)
		return
	}
	Ok(c, map[string]any{"id": id, "deleted": true}, nil)
}
