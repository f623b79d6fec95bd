package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/orchestrator"
)

type JobsHandler struct {
	orch *orchestrator.Orchestrator
}

func NewJobsHandler(orch *orchestrator.Orchestrator) *JobsHandler {
	return &JobsHandler{orch: orch}
}

func campaignIDQuery(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("campaign_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_campaign_id", err)
		return nil, false
	}
	return &id, true
}

// GET /api/jobs/pending
func (h *JobsHandler) GetPendingJobs(c *gin.Context) {
	campaignID, ok := campaignIDQuery(c)
	if !ok {
		return
	}

	summary, err := h.orch.GetPendingJobsSummary(c.Request.Context(), campaignID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "scan_failed", err)
		return
	}
	RespondOK(c, summary)
}

// POST /api/jobs/run
func (h *JobsHandler) RunJobs(c *gin.Context) {
	var body struct {
		MaxJobs    int        `json:"max_jobs"`
		CampaignID *uuid.UUID `json:"campaign_id"`
	}
	// body is optional: an empty POST runs a single job across all campaigns
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	results, err := h.orch.RunJobs(c.Request.Context(), body.CampaignID, body.MaxJobs)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "run_failed", err)
		return
	}
	if len(results) == 0 {
		RespondOK(c, gin.H{"results": []orchestrator.JobResult{}, "message": "no pending jobs"})
		return
	}
	RespondOK(c, gin.H{"results": results})
}
