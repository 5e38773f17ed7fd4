package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ibrl/internal/auth"
	"ibrl/internal/service"
)

const featurePrefix = "feature."

type SystemSettingsHandler struct {
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.RouterGroup) {
	g := r.Group("/system-settings")
	g.GET("", h.list)
	g.GET("/switches", h.listSwitches)
	g.PUT("/switches/:name", h.putSwitch)
	g.GET("/:key", h.get)
	g.PUT("/:key", h.put)
}

// @Summary List system settings
// @Tags system-settings
// @Produce json
// @Param prefix query string false "key prefix"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings [get]
func (h *SystemSettingsHandler) list(c *gin.Context) {
	limit := clampLimit(intQuery(c, "limit", 200), 200, 500)
	offset := intQuery(c, "offset", 0)
	items, total, err := h.Settings.List(c.Request.Context(), stringQuery(c, "prefix"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get a system setting
// @Tags system-settings
// @Produce json
// @Param key path string true "setting key"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/system-settings/{key} [get]
func (h *SystemSettingsHandler) get(c *gin.Context) {
	item, err := h.Settings.Get(c.Request.Context(), strings.TrimSpace(c.Param("key")))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

type putSystemSettingRequest struct {
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description"`
}

// @Summary Upsert a system setting
// @Tags system-settings
// @Accept json
// @Produce json
// @Param key path string true "setting key"
// @Param body body putSystemSettingRequest true "value"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v1/system-settings/{key} [put]
func (h *SystemSettingsHandler) put(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var req putSystemSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	ctx := c.Request.Context()
	if err := h.Settings.Put(ctx, key, req.Value, req.Description, updatedBy(c)); err != nil {
		fail(c, err)
		return
	}
	item, err := h.Settings.Get(ctx, key)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary List feature switches
// @Tags system-settings
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings/switches [get]
func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	prefix := featurePrefix
	items, _, err := h.Settings.List(c.Request.Context(), &prefix, 200, 0)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		enabled := false
		_ = json.Unmarshal(it.Value, &enabled)
		out = append(out, map[string]any{
			"name":        strings.TrimPrefix(it.Key, featurePrefix),
			"key":         it.Key,
			"enabled":     enabled,
			"description": it.Description,
			"updated_at":  it.UpdatedAt,
		})
	}
	Ok(c, out, nil)
}

type putSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

// @Summary Flip a feature switch
// @Tags system-settings
// @Accept json
// @Produce json
// @Param name path string true "switch name without the feature. prefix"
// @Param body body putSwitchRequest true "switch state"
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings/switches/{name} [put]
func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "invalid switch name", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	key := featurePrefix + name
	if err := h.Settings.SetEnabled(c.Request.Context(), key, req.Enabled, updatedBy(c)); err != nil {
		fail(c, err)
		return
	}
	Ok(c, map[string]any{
		"name":    name,
		"key":     key,
		"enabled": req.Enabled,
	}, nil)
}

func updatedBy(c *gin.Context) string {
	if owner, ok := auth.OwnerFromContext(c); ok {
		return owner
	}
	return "api"
}
