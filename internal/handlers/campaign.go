package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/orchestrator"
	"github.com/adloophq/adloop-backend/internal/services"
)

type CampaignHandler struct {
	campaigns *services.CampaignService
	orch      *orchestrator.Orchestrator
}

func NewCampaignHandler(campaigns *services.CampaignService, orch *orchestrator.Orchestrator) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, orch: orch}
}

// POST /api/campaign-specs
func (h *CampaignHandler) CreateCampaignSpec(c *gin.Context) {
	var body services.CreateCampaignSpecInput
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	spec, err := h.campaigns.CreateCampaignSpec(c.Request.Context(), nil, body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "create_failed", err)
		return
	}
	RespondCreated(c, gin.H{"campaign_spec": spec})
}

// GET /api/campaign-specs
func (h *CampaignHandler) ListCampaignSpecs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	specs, err := h.campaigns.ListCampaignSpecs(c.Request.Context(), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"campaign_specs": specs})
}

// GET /api/campaign-specs/:id
func (h *CampaignHandler) GetCampaignSpec(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_spec_id", err)
		return
	}
	spec, err := h.campaigns.GetCampaignSpec(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	if spec == nil {
		RespondError(c, http.StatusNotFound, "spec_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"campaign_spec": spec})
}

// GET /api/campaigns
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	campaigns, err := h.campaigns.ListCampaigns(c.Request.Context(), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"campaigns": campaigns})
}

// POST /api/campaigns
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var body struct {
		CampaignSpecID uuid.UUID `json:"campaign_spec_id"`
		AutoStart      bool      `json:"auto_start"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if body.CampaignSpecID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "missing_spec_id", nil)
		return
	}

	campaign, jobs, err := h.orch.InitializeCampaign(c.Request.Context(), body.CampaignSpecID)
	if err != nil {
		var exists *services.CampaignAlreadyExistsError
		var notFound *services.CampaignSpecNotFoundError
		switch {
		case errors.As(err, &exists):
			RespondError(c, http.StatusConflict, "campaign_exists", err)
		case errors.As(err, &notFound):
			RespondError(c, http.StatusNotFound, "spec_not_found", err)
		default:
			RespondError(c, http.StatusInternalServerError, "create_failed", err)
		}
		return
	}

	// auto_start runs the first-step jobs right away so the caller gets a
	// campaign whose flows are already generating.
	var started []orchestrator.JobResult
	if body.AutoStart {
		for _, job := range jobs {
			if job.Type != orchestrator.JobCreateFirstStep {
				continue
			}
			started = append(started, h.orch.ExecuteJob(c.Request.Context(), job))
		}
	}

	RespondCreated(c, gin.H{"campaign": campaign, "pending_jobs": jobs, "started": started})
}

// GET /api/campaigns/:id/status
func (h *CampaignHandler) GetCampaignStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_campaign_id", err)
		return
	}

	status, err := h.orch.GetCampaignStatus(c.Request.Context(), id)
	if err != nil {
		var notFound *services.CampaignNotFoundError
		if errors.As(err, &notFound) {
			RespondError(c, http.StatusNotFound, "campaign_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, status)
}

// GET /api/flows/:id/status
func (h *CampaignHandler) GetFlowStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_flow_id", err)
		return
	}

	status, err := h.orch.GetFlowStatus(c.Request.Context(), id)
	if err != nil {
		var notFound *services.FlowNotFoundError
		if errors.As(err, &notFound) {
			RespondError(c, http.StatusNotFound, "flow_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, status)
}
