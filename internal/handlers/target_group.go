package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/services"
)

type TargetGroupHandler struct {
	assets *services.AssetService
}

func NewTargetGroupHandler(assets *services.AssetService) *TargetGroupHandler {
	return &TargetGroupHandler{assets: assets}
}

// POST /api/target-groups
func (h *TargetGroupHandler) CreateTargetGroups(c *gin.Context) {
	var body struct {
		TargetGroups []*domain.TargetGroup `json:"target_groups"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(body.TargetGroups) == 0 {
		RespondError(c, http.StatusBadRequest, "no_target_groups", nil)
		return
	}

	created, err := h.assets.CreateTargetGroups(c.Request.Context(), nil, body.TargetGroups)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	RespondCreated(c, gin.H{"target_groups": created})
}

// GET /api/target-groups
func (h *TargetGroupHandler) ListTargetGroups(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	groups, err := h.assets.ListTargetGroups(c.Request.Context(), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"target_groups": groups})
}
