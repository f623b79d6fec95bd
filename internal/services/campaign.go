package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
	"github.com/adloophq/adloop-backend/internal/repos"
)

type CreateCampaignSpecInput struct {
	Name           string      `json:"name"`
	BasePrompt     string      `json:"base_prompt"`
	MaxIterations  int         `json:"max_iterations"`
	AssetIDs       []uuid.UUID `json:"asset_ids"`
	TargetGroupIDs []uuid.UUID `json:"target_group_ids"`
}

// CampaignService owns campaign setup and the step state machine. Every
// mutation takes an optional tx so the orchestrator can group a whole job
// into one transaction.
type CampaignService struct {
	log          *logger.Logger
	specRepo     repos.CampaignSpecRepo
	campRepo     repos.CampaignRepo
	flowRepo     repos.CampaignFlowRepo
	stepRepo     repos.FlowStepRepo
	genRepo      repos.GenerationRepo
	analysisRepo repos.AnalysisRepo
	assetRepo    repos.AssetRepo
	groupRepo    repos.TargetGroupRepo
}

func NewCampaignService(
	log *logger.Logger,
	specRepo repos.CampaignSpecRepo,
	campRepo repos.CampaignRepo,
	flowRepo repos.CampaignFlowRepo,
	stepRepo repos.FlowStepRepo,
	genRepo repos.GenerationRepo,
	analysisRepo repos.AnalysisRepo,
	assetRepo repos.AssetRepo,
	groupRepo repos.TargetGroupRepo,
) *CampaignService {
	return &CampaignService{
		log:          log.With("service", "CampaignService"),
		specRepo:     specRepo,
		campRepo:     campRepo,
		flowRepo:     flowRepo,
		stepRepo:     stepRepo,
		genRepo:      genRepo,
		analysisRepo: analysisRepo,
		assetRepo:    assetRepo,
		groupRepo:    groupRepo,
	}
}

func (s *CampaignService) CreateCampaignSpec(ctx context.Context, tx *gorm.DB, in CreateCampaignSpecInput) (*domain.CampaignSpec, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("spec name required")
	}
	if in.BasePrompt == "" {
		return nil, fmt.Errorf("base prompt required")
	}
	maxIterations := in.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 2
	}

	spec := &domain.CampaignSpec{
		Name:          in.Name,
		BasePrompt:    in.BasePrompt,
		MaxIterations: maxIterations,
	}
	if _, err := s.specRepo.Create(ctx, tx, spec); err != nil {
		return nil, err
	}

	if len(in.AssetIDs) > 0 {
		assets, err := s.assetRepo.GetByIDs(ctx, tx, in.AssetIDs)
		if err != nil {
			return nil, err
		}
		if len(assets) != len(in.AssetIDs) {
			return nil, fmt.Errorf("unknown asset id in spec input")
		}
		if err := s.specRepo.AppendBaseAssets(ctx, tx, spec, assets); err != nil {
			return nil, err
		}
	}

	if len(in.TargetGroupIDs) > 0 {
		groups, err := s.groupRepo.GetByIDs(ctx, tx, in.TargetGroupIDs)
		if err != nil {
			return nil, err
		}
		if len(groups) != len(in.TargetGroupIDs) {
			return nil, fmt.Errorf("unknown target group id in spec input")
		}
		if err := s.specRepo.AppendTargetGroups(ctx, tx, spec, groups); err != nil {
			return nil, err
		}
	}

	return s.specRepo.GetByIDFull(ctx, tx, spec.ID)
}

func (s *CampaignService) GetCampaignSpec(ctx context.Context, id uuid.UUID) (*domain.CampaignSpec, error) {
	return s.specRepo.GetByIDFull(ctx, nil, id)
}

func (s *CampaignService) ListCampaignSpecs(ctx context.Context, limit, offset int) ([]*domain.CampaignSpec, error) {
	return s.specRepo.List(ctx, nil, limit, offset)
}

func (s *CampaignService) ListCampaigns(ctx context.Context, limit, offset int) ([]*domain.Campaign, error) {
	return s.campRepo.List(ctx, nil, limit, offset)
}

// InitializeCampaign creates the campaign for a spec plus one flow per
// target group, each seeded with the spec's base prompt. A spec can only
// ever have one campaign.
func (s *CampaignService) InitializeCampaign(ctx context.Context, tx *gorm.DB, specID uuid.UUID) (*domain.Campaign, error) {
	spec, err := s.specRepo.GetByIDFull(ctx, tx, specID)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, &CampaignSpecNotFoundError{ID: specID}
	}

	existing, err := s.campRepo.GetBySpecID(ctx, tx, specID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, &CampaignAlreadyExistsError{SpecID: specID, CampaignID: existing[0].ID}
	}
	if len(spec.TargetGroups) == 0 {
		return nil, fmt.Errorf("spec %s has no target groups", specID)
	}

	campaign := &domain.Campaign{CampaignSpecID: spec.ID}
	if _, err := s.campRepo.Create(ctx, tx, campaign); err != nil {
		return nil, err
	}

	flows := make([]*domain.CampaignFlow, 0, len(spec.TargetGroups))
	for _, tg := range spec.TargetGroups {
		flows = append(flows, &domain.CampaignFlow{
			CampaignID:    campaign.ID,
			TargetGroupID: tg.ID,
			InitialPrompt: spec.BasePrompt,
		})
	}
	if _, err := s.flowRepo.Create(ctx, tx, flows); err != nil {
		return nil, err
	}

	campaign.Flows = make([]domain.CampaignFlow, 0, len(flows))
	for _, f := range flows {
		campaign.Flows = append(campaign.Flows, *f)
	}

	s.log.Info("Campaign initialized", "campaign_id", campaign.ID, "spec_id", specID, "flows", len(flows))
	return campaign, nil
}

// CreateStep appends the next iteration's step to a flow in the generating
// state. Iteration numbers are derived from the latest persisted step, never
// passed in.
func (s *CampaignService) CreateStep(ctx context.Context, tx *gorm.DB, flowID uuid.UUID, inputEmbedding []float64, inputInsights string) (*domain.FlowStep, error) {
	flow, err := s.flowRepo.GetByID(ctx, tx, flowID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, &FlowNotFoundError{ID: flowID}
	}

	latest, err := s.stepRepo.GetLatestByFlowID(ctx, tx, flowID)
	if err != nil {
		return nil, err
	}
	iteration := 0
	if latest != nil {
		iteration = latest.Iteration + 1
	}

	step := &domain.FlowStep{
		FlowID:         flowID,
		Iteration:      iteration,
		State:          domain.StepGenerating,
		InputEmbedding: inputEmbedding,
		InputInsights:  inputInsights,
	}
	if _, err := s.stepRepo.Create(ctx, tx, step); err != nil {
		return nil, err
	}
	s.log.Info("Step created", "flow_id", flowID, "step_id", step.ID, "iteration", iteration)
	return step, nil
}

// TransitionStep advances a step along the single forward edge of the state
// machine. Leaving generating requires the generation result to exist and
// leaving analyzing requires the analysis result, so a crashed job can never
// strand a step in a state its data does not support.
func (s *CampaignService) TransitionStep(ctx context.Context, tx *gorm.DB, stepID uuid.UUID, to domain.StepState) (*domain.FlowStep, error) {
	step, err := s.stepRepo.GetByID(ctx, tx, stepID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, &StepNotFoundError{ID: stepID}
	}

	if step.State.NextState() != to || to == "" {
		return nil, &InvalidStateTransitionError{StepID: stepID, From: step.State, To: to}
	}

	switch step.State {
	case domain.StepGenerating:
		result, err := s.genRepo.GetResultByStepID(ctx, tx, stepID)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, &MissingPhaseOutputError{StepID: stepID, State: step.State}
		}
	case domain.StepAnalyzing:
		result, err := s.analysisRepo.GetByStepID(ctx, tx, stepID)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, &MissingPhaseOutputError{StepID: stepID, State: step.State}
		}
	}

	if err := s.stepRepo.UpdateState(ctx, tx, stepID, to); err != nil {
		return nil, err
	}
	step.State = to
	s.log.Info("Step transitioned", "step_id", stepID, "state", to)
	return step, nil
}

// RecordGenerationResult persists the generating phase output. A leftover
// result from a failed earlier pass is deleted first so the step's result
// stays unique.
func (s *CampaignService) RecordGenerationResult(ctx context.Context, tx *gorm.DB, stepID uuid.UUID, prompt, promptNotes string, selectedAssets []*domain.Asset) (*domain.GenerationResult, error) {
	existing, err := s.genRepo.GetResultByStepID(ctx, tx, stepID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.genRepo.DeleteResult(ctx, tx, existing.ID); err != nil {
			return nil, err
		}
		s.log.Warn("Replaced stale generation result", "step_id", stepID, "old_result_id", existing.ID)
	}

	result := &domain.GenerationResult{
		StepID:      stepID,
		Prompt:      prompt,
		PromptNotes: promptNotes,
	}
	if _, err := s.genRepo.CreateResult(ctx, tx, result); err != nil {
		return nil, err
	}
	if err := s.genRepo.AppendSelectedAssets(ctx, tx, result, selectedAssets); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CampaignService) RecordImages(ctx context.Context, tx *gorm.DB, images []*domain.GeneratedImage, sources [][]*domain.Asset) ([]*domain.GeneratedImage, error) {
	if len(sources) != 0 && len(sources) != len(images) {
		return nil, fmt.Errorf("sources length mismatch: %d images, %d source sets", len(images), len(sources))
	}
	created, err := s.genRepo.CreateImages(ctx, tx, images)
	if err != nil {
		return nil, err
	}
	for i, img := range created {
		if len(sources) == 0 || len(sources[i]) == 0 {
			continue
		}
		if err := s.genRepo.AppendSourceAssets(ctx, tx, img, sources[i]); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// RecordMetrics upserts raw counts for one image. Ratios are recomputed by
// the model hook on save.
func (s *CampaignService) RecordMetrics(ctx context.Context, tx *gorm.DB, row ImageAnalytics) (*domain.ImageMetrics, error) {
	metrics := &domain.ImageMetrics{
		ImageID:     row.ImageID,
		Impressions: row.Impressions,
		Clicks:      row.Clicks,
		Conversions: row.Conversions,
		Cost:        row.Cost,
	}
	metrics.ComputeDerived()
	return s.genRepo.UpsertMetrics(ctx, tx, metrics)
}

func (s *CampaignService) RecordAnalysisResult(ctx context.Context, tx *gorm.DB, result *domain.AnalysisResult) (*domain.AnalysisResult, error) {
	existing, err := s.analysisRepo.GetByStepID(ctx, tx, result.StepID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.analysisRepo.Create(ctx, tx, result)
}
