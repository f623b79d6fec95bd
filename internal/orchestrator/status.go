package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/services"
)

type FlowSummary struct {
	FlowID           uuid.UUID `json:"flow_id"`
	TargetGroup      string    `json:"target_group,omitempty"`
	CurrentIteration *int      `json:"current_iteration,omitempty"`
	CurrentState     string    `json:"current_state,omitempty"`
	NextJob          string    `json:"next_job"`
}

type CampaignStatus struct {
	CampaignID  uuid.UUID     `json:"campaign_id"`
	TotalFlows  int           `json:"total_flows"`
	PendingJobs int           `json:"pending_jobs"`
	Flows       []FlowSummary `json:"flows"`
}

type StepSummary struct {
	StepID              uuid.UUID `json:"step_id"`
	Iteration           int       `json:"iteration"`
	State               string    `json:"state"`
	HasGenerationResult bool      `json:"has_generation_result"`
	HasAnalysisResult   bool      `json:"has_analysis_result"`
	ImageCount          int       `json:"image_count"`
}

type FlowStatus struct {
	FlowID      uuid.UUID     `json:"flow_id"`
	TargetGroup string        `json:"target_group,omitempty"`
	NextJob     string        `json:"next_job"`
	Steps       []StepSummary `json:"steps"`
}

type PendingJobsSummary struct {
	Total  int             `json:"total"`
	ByType map[JobType]int `json:"by_type"`
	Jobs   []Job           `json:"jobs"`
}

// GetPendingJobsSummary scans the flows in scope and groups the due jobs by
// type.
func (o *Orchestrator) GetPendingJobsSummary(ctx context.Context, campaignID *uuid.UUID) (*PendingJobsSummary, error) {
	jobs, err := o.PendingJobs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	summary := &PendingJobsSummary{
		Total:  len(jobs),
		ByType: make(map[JobType]int),
		Jobs:   jobs,
	}
	for _, job := range jobs {
		summary.ByType[job.Type]++
	}
	return summary, nil
}

// GetCampaignStatus summarizes every flow of a campaign: where each one
// stands and what it will do next.
func (o *Orchestrator) GetCampaignStatus(ctx context.Context, campaignID uuid.UUID) (*CampaignStatus, error) {
	campaign, err := o.d.CampaignRepo.GetByID(ctx, nil, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, &services.CampaignNotFoundError{ID: campaignID}
	}

	flows, err := o.d.FlowRepo.GetByCampaignID(ctx, nil, campaignID)
	if err != nil {
		return nil, err
	}

	status := &CampaignStatus{CampaignID: campaignID, TotalFlows: len(flows)}
	for _, flow := range flows {
		snap, err := o.snapshotFlow(ctx, flow)
		if err != nil {
			return nil, err
		}

		summary := FlowSummary{FlowID: flow.ID, NextJob: "complete"}
		if group, err := o.d.GroupRepo.GetByID(ctx, nil, flow.TargetGroupID); err == nil && group != nil {
			summary.TargetGroup = group.Name
		}
		if snap.Latest != nil {
			iteration := snap.Latest.Iteration
			summary.CurrentIteration = &iteration
			summary.CurrentState = string(snap.Latest.State)
		}
		if job := JobForFlow(snap); job != nil {
			summary.NextJob = string(job.Type)
			status.PendingJobs++
		}
		status.Flows = append(status.Flows, summary)
	}
	return status, nil
}

// GetFlowStatus details every step of one flow.
func (o *Orchestrator) GetFlowStatus(ctx context.Context, flowID uuid.UUID) (*FlowStatus, error) {
	flow, err := o.d.FlowRepo.GetByID(ctx, nil, flowID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, &services.FlowNotFoundError{ID: flowID}
	}

	status := &FlowStatus{FlowID: flowID, NextJob: "complete"}
	if group, err := o.d.GroupRepo.GetByID(ctx, nil, flow.TargetGroupID); err == nil && group != nil {
		status.TargetGroup = group.Name
	}

	snap, err := o.snapshotFlow(ctx, flow)
	if err != nil {
		return nil, err
	}
	if job := JobForFlow(snap); job != nil {
		status.NextJob = string(job.Type)
	}

	steps, err := o.d.StepRepo.GetByFlowID(ctx, nil, flowID)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		summary := StepSummary{
			StepID:    step.ID,
			Iteration: step.Iteration,
			State:     string(step.State),
		}
		genResult, err := o.d.GenRepo.GetResultByStepID(ctx, nil, step.ID)
		if err != nil {
			return nil, err
		}
		if genResult != nil {
			summary.HasGenerationResult = true
			images, err := o.d.GenRepo.GetImagesByResultID(ctx, nil, genResult.ID)
			if err != nil {
				return nil, err
			}
			summary.ImageCount = len(images)
		}
		analysis, err := o.d.AnalysisRepo.GetByStepID(ctx, nil, step.ID)
		if err != nil {
			return nil, err
		}
		summary.HasAnalysisResult = analysis != nil
		status.Steps = append(status.Steps, summary)
	}
	return status, nil
}
