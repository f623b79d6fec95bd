package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/services"
)

type AssetHandler struct {
	assets *services.AssetService
}

func NewAssetHandler(assets *services.AssetService) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// POST /api/assets
func (h *AssetHandler) CreateAssets(c *gin.Context) {
	var body struct {
		Assets []services.CreateAssetInput `json:"assets"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(body.Assets) == 0 {
		RespondError(c, http.StatusBadRequest, "no_assets", nil)
		return
	}

	created, err := h.assets.CreateAssets(c.Request.Context(), nil, body.Assets)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	RespondCreated(c, gin.H{"assets": created})
}

// GET /api/assets
func (h *AssetHandler) ListAssets(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	assets, err := h.assets.ListAssets(c.Request.Context(), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"assets": assets})
}

// GET /api/assets/:id
func (h *AssetHandler) GetAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_asset_id", err)
		return
	}
	asset, err := h.assets.GetAsset(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	if asset == nil {
		RespondError(c, http.StatusNotFound, "asset_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"asset": asset})
}
