package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ibrl/internal/auth"
	"ibrl/internal/errs"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// fail maps a service error onto a status code. Insufficient funds carry the shortfall.
func fail(c *gin.Context, err error) {
	if fe, ok := errs.AsInsufficientFunds(err); ok {
		Error(c, http.StatusUnprocessableEntity, fe.Error(), map[string]any{
			"asset":     fe.Asset,
			"requested": fe.Requested,
			"allowed":   fe.Allowed,
			"shortfall": fe.Shortfall,
		})
		return
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		Error(c, http.StatusNotFound, "not found", nil)
	case errs.IsValidation(err):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errs.IsUpstream(err):
		Error(c, http.StatusBadGateway, err.Error(), nil)
	case errors.Is(err, errs.ErrStateConflict):
		Ok(c, nil, map[string]any{"conflict": true, "reason": err.Error()})
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}

const ownerContextKey = "owner"

// requestOwner returns the verified token owner when auth is on, otherwise the owner named
// by the request. The resolved owner is kept on the context for the audit middleware.
func requestOwner(c *gin.Context, fromBody string) (string, bool) {
	owner, ok := auth.OwnerFromContext(c)
	if !ok {
		owner = strings.TrimSpace(fromBody)
		if owner == "" {
			owner = strings.TrimSpace(c.Query("owner"))
		}
	}
	if owner == "" {
		Error(c, http.StatusBadRequest, "owner: Wallet not connected", nil)
		return "", false
	}
	c.Set(ownerContextKey, owner)
	return owner, true
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func stringQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

func paginationMeta(limit, offset int, total int64) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": int64(offset+limit) < total,
	}
}
