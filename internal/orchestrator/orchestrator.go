package orchestrator

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
	"github.com/adloophq/adloop-backend/internal/repos"
	"github.com/adloophq/adloop-backend/internal/services"
)

// Notifier publishes orchestration events for external consumers. A nil
// notifier disables publishing.
type Notifier interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Deps collects everything the orchestrator needs. Repos and adapters are
// interfaces so tests can run the whole pipeline against fakes.
type Deps struct {
	DB *gorm.DB

	SpecRepo     repos.CampaignSpecRepo
	CampaignRepo repos.CampaignRepo
	FlowRepo     repos.CampaignFlowRepo
	StepRepo     repos.FlowStepRepo
	GenRepo      repos.GenerationRepo
	AnalysisRepo repos.AnalysisRepo
	GroupRepo    repos.TargetGroupRepo

	Campaigns *services.CampaignService

	Generator services.ImageGenerator
	Describer services.DescribeProvider
	Analytics services.AnalyticsProvider
	Analysis  services.AnalysisProvider
	Refiner   services.PromptRefiner

	Notifier Notifier
	Rand     *rand.Rand
}

// Orchestrator drives campaign flows through their iteration state machine.
// Work is discovered by scanning flow state, never queued: a crashed job
// reappears on the next scan because nothing advanced.
type Orchestrator struct {
	log *logger.Logger
	cfg Config
	d   Deps
}

func New(log *logger.Logger, cfg Config, d Deps) *Orchestrator {
	if cfg.NumImagesPerStep <= 0 {
		cfg = DefaultConfig()
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Orchestrator{
		log: log.With("service", "Orchestrator"),
		cfg: cfg,
		d:   d,
	}
}

// withTx runs fn inside a transaction when a database is configured, or
// directly against nil otherwise so fake-repo tests need no gorm handle.
func (o *Orchestrator) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if o.d.DB == nil {
		return fn(nil)
	}
	return o.d.DB.WithContext(ctx).Transaction(fn)
}

func (o *Orchestrator) publish(ctx context.Context, event string, payload any) {
	if o.d.Notifier == nil {
		return
	}
	if err := o.d.Notifier.Publish(ctx, event, payload); err != nil {
		o.log.Warn("Event publish failed", "event", event, "error", err)
	}
}

// InitializeCampaign creates the campaign and its flows for a spec, then
// reports the jobs now due (one create_first_step per flow).
func (o *Orchestrator) InitializeCampaign(ctx context.Context, specID uuid.UUID) (*domain.Campaign, []Job, error) {
	var campaign *domain.Campaign
	err := o.withTx(ctx, func(tx *gorm.DB) error {
		var err error
		campaign, err = o.d.Campaigns.InitializeCampaign(ctx, tx, specID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	jobs, err := o.PendingJobs(ctx, &campaign.ID)
	if err != nil {
		return nil, nil, err
	}

	o.publish(ctx, "campaign.initialized", map[string]any{
		"campaign_id": campaign.ID,
		"spec_id":     specID,
		"flows":       len(campaign.Flows),
	})
	return campaign, jobs, nil
}

// snapshotFlow reduces a flow to the view the discovery rule needs.
func (o *Orchestrator) snapshotFlow(ctx context.Context, flow *domain.CampaignFlow) (FlowSnapshot, error) {
	snap := FlowSnapshot{FlowID: flow.ID}

	latest, err := o.d.StepRepo.GetLatestByFlowID(ctx, nil, flow.ID)
	if err != nil {
		return snap, err
	}
	if latest != nil {
		snap.Latest = &StepSnapshot{ID: latest.ID, Iteration: latest.Iteration, State: latest.State}
	}

	campaign, err := o.d.CampaignRepo.GetByID(ctx, nil, flow.CampaignID)
	if err != nil {
		return snap, err
	}
	if campaign == nil {
		return snap, &services.CampaignNotFoundError{ID: flow.CampaignID}
	}
	spec, err := o.d.SpecRepo.GetByID(ctx, nil, campaign.CampaignSpecID)
	if err != nil {
		return snap, err
	}
	if spec == nil {
		return snap, &services.CampaignSpecNotFoundError{ID: campaign.CampaignSpecID}
	}
	snap.MaxIterations = spec.MaxIterations
	return snap, nil
}

func (o *Orchestrator) flowsInScope(ctx context.Context, campaignID *uuid.UUID) ([]*domain.CampaignFlow, error) {
	if campaignID != nil {
		return o.d.FlowRepo.GetByCampaignID(ctx, nil, *campaignID)
	}
	return o.d.FlowRepo.ListAll(ctx, nil)
}

// PendingJobs scans every flow in scope and returns each flow's due job,
// sorted by priority. The flow list is creation-ordered, so equal priorities
// favor older flows.
func (o *Orchestrator) PendingJobs(ctx context.Context, campaignID *uuid.UUID) ([]Job, error) {
	flows, err := o.flowsInScope(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var jobs []Job
	for _, flow := range flows {
		snap, err := o.snapshotFlow(ctx, flow)
		if err != nil {
			return nil, err
		}
		if job := JobForFlow(snap); job != nil {
			jobs = append(jobs, *job)
		}
	}

	// stable insertion sort keeps flow creation order within a priority
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && jobs[j].Priority < jobs[j-1].Priority; j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}
	return jobs, nil
}

// NextJob returns the highest priority due job, or nil when every flow in
// scope is complete.
func (o *Orchestrator) NextJob(ctx context.Context, campaignID *uuid.UUID) (*Job, error) {
	jobs, err := o.PendingJobs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// ExecuteJob runs one job inside a transaction. A failed job rolls back
// whole, leaving the flow state untouched for the next scan to retry.
func (o *Orchestrator) ExecuteJob(ctx context.Context, job Job) JobResult {
	result := JobResult{Job: job, Data: map[string]any{}}

	err := o.withTx(ctx, func(tx *gorm.DB) error {
		switch job.Type {
		case JobCreateFirstStep:
			return o.executeCreateFirstStep(ctx, tx, job, &result)
		case JobRunGenerating:
			return o.executeGenerating(ctx, tx, job, &result)
		case JobRunCollectingData:
			return o.executeCollecting(ctx, tx, job, &result)
		case JobRunAnalyzing:
			return o.executeAnalyzing(ctx, tx, job, &result)
		case JobCreateNextIteration:
			return o.executeCreateNextIteration(ctx, tx, job, &result)
		default:
			return fmt.Errorf("unknown job type: %s", job.Type)
		}
	})
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		o.log.Error("Job failed", "type", job.Type, "flow_id", job.FlowID, "error", err)
		o.publish(ctx, "job.failed", result)
		return result
	}

	result.Success = true
	o.log.Info("Job completed", "type", job.Type, "flow_id", job.FlowID)
	o.publish(ctx, "job.completed", result)
	return result
}

// RunNextJob finds and executes the next due job. Returns nil when no work
// is pending.
func (o *Orchestrator) RunNextJob(ctx context.Context, campaignID *uuid.UUID) (*JobResult, error) {
	job, err := o.NextJob(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	result := o.ExecuteJob(ctx, *job)
	return &result, nil
}

// RunJobs executes up to maxJobs due jobs, re-deriving the next job after
// each one. Stops early when no work remains or a job fails (the failed
// flow's state is unchanged, so continuing would retry it immediately).
func (o *Orchestrator) RunJobs(ctx context.Context, campaignID *uuid.UUID, maxJobs int) ([]JobResult, error) {
	if maxJobs <= 0 {
		maxJobs = 1
	}
	var results []JobResult
	for i := 0; i < maxJobs; i++ {
		result, err := o.RunNextJob(ctx, campaignID)
		if err != nil {
			return results, err
		}
		if result == nil {
			break
		}
		results = append(results, *result)
		if !result.Success {
			break
		}
	}
	return results, nil
}

func (o *Orchestrator) executeCreateFirstStep(ctx context.Context, tx *gorm.DB, job Job, result *JobResult) error {
	step, err := o.d.Campaigns.CreateStep(ctx, tx, job.FlowID, nil, "")
	if err != nil {
		return err
	}
	result.Data["step_id"] = step.ID.String()
	result.Data["iteration"] = step.Iteration
	return nil
}

func (o *Orchestrator) executeGenerating(ctx context.Context, tx *gorm.DB, job Job, result *JobResult) error {
	if job.StepID == nil {
		return fmt.Errorf("generating job without step id")
	}
	step, err := o.d.StepRepo.GetByID(ctx, tx, *job.StepID)
	if err != nil {
		return err
	}
	if step == nil {
		return &services.StepNotFoundError{ID: *job.StepID}
	}
	flow, err := o.d.FlowRepo.GetByID(ctx, tx, job.FlowID)
	if err != nil {
		return err
	}
	if flow == nil {
		return &services.FlowNotFoundError{ID: job.FlowID}
	}

	// the refined prompt from the previous iteration wins over the seed
	prompt := flow.InitialPrompt
	if step.InputInsights != "" {
		prompt = step.InputInsights
	}

	pool, err := o.baseAssets(ctx, tx, flow)
	if err != nil {
		return err
	}

	current := pool
	if step.Iteration > 0 && len(step.InputEmbedding) > 0 {
		categoryEmbeddings, err := o.winnerCategoryEmbeddings(ctx, tx, flow.ID, step.Iteration-1)
		if err != nil {
			return err
		}
		current = FilterAssetsByIteration(step.InputEmbedding, pool, step.Iteration, categoryEmbeddings)
		o.log.Info("Narrowed asset pool",
			"step_id", step.ID,
			"iteration", step.Iteration,
			"before", len(pool),
			"after", len(current),
		)
	}

	sets := SelectAssetSets(o.d.Rand, current, o.cfg.NumImagesPerStep, nil)
	if len(sets) == 0 {
		return fmt.Errorf("no asset sets could be built from %d assets", len(current))
	}

	selectedByID := make(map[uuid.UUID]*domain.Asset)
	for _, set := range sets {
		for _, a := range set.AssetList() {
			selectedByID[a.ID] = a
		}
	}
	selected := make([]*domain.Asset, 0, len(selectedByID))
	for _, set := range sets {
		for _, a := range set.AssetList() {
			if selectedByID[a.ID] != nil {
				selected = append(selected, a)
				selectedByID[a.ID] = nil
			}
		}
	}

	genResult, err := o.d.Campaigns.RecordGenerationResult(ctx, tx, step.ID, prompt, step.InputInsights, selected)
	if err != nil {
		return err
	}

	var images []*domain.GeneratedImage
	var sources [][]*domain.Asset
	for i, set := range sets {
		base, refs := SplitBaseAndReferences(set, o.cfg.BaseCategory)
		if base == nil {
			continue
		}

		fullPrompt := BuildGenerationPrompt(prompt, base, refs)
		genOut := o.d.Generator.Generate(ctx, services.GenerateRequest{
			Prompt:          fullPrompt,
			BaseAsset:       base,
			ReferenceAssets: refs,
			Width:           o.cfg.ImageWidth,
			Height:          o.cfg.ImageHeight,
		})
		if !genOut.Success {
			o.log.Warn("Image generation failed",
				"step_id", step.ID,
				"set", i,
				"error", genOut.Err,
			)
			continue
		}

		images = append(images, &domain.GeneratedImage{
			GenerationResultID: genResult.ID,
			FileName:           genOut.FileName,
			MetadataTags:       datatypes.JSONSlice[string](genOut.MetadataTags),
			ModelVersion:       genOut.ModelVersion,
		})
		sources = append(sources, set.AssetList())
	}

	if len(images) == 0 {
		return &services.GenerationExhaustedError{StepID: step.ID, Requested: len(sets)}
	}

	created, err := o.d.Campaigns.RecordImages(ctx, tx, images, sources)
	if err != nil {
		return err
	}

	if _, err := o.d.Campaigns.TransitionStep(ctx, tx, step.ID, domain.StepCollecting); err != nil {
		return err
	}

	result.Data["step_id"] = step.ID.String()
	result.Data["generated_images"] = len(created)
	return nil
}

func (o *Orchestrator) executeCollecting(ctx context.Context, tx *gorm.DB, job Job, result *JobResult) error {
	if job.StepID == nil {
		return fmt.Errorf("collecting job without step id")
	}
	step, _, group, err := o.loadStepContext(ctx, tx, *job.StepID, job.FlowID)
	if err != nil {
		return err
	}

	genResult, err := o.d.GenRepo.GetResultByStepID(ctx, tx, step.ID)
	if err != nil {
		return err
	}
	if genResult == nil {
		return &services.MissingPhaseOutputError{StepID: step.ID, State: domain.StepGenerating}
	}
	images, err := o.d.GenRepo.GetImagesByResultID(ctx, tx, genResult.ID)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("no images found for generation result %s", genResult.ID)
	}

	descriptions := make([]services.ImageDescription, 0, len(images))
	for _, img := range images {
		desc := o.d.Describer.Describe(ctx, img.FileName, "")
		if desc.UsedFallback {
			o.log.Warn("Description fell back", "image_id", img.ID)
		}
		descriptions = append(descriptions, services.ImageDescription{ImageID: img.ID, Text: desc.Text})

		text := desc.Text
		if len(text) > 500 {
			text = text[:500]
		}
		tags := append([]string{}, img.MetadataTags...)
		tags = append(tags, domain.DescriptionTagPrefix+text)
		if err := o.d.GenRepo.UpdateImageTags(ctx, tx, img.ID, tags); err != nil {
			return err
		}
	}

	rows := o.d.Analytics.SimulateMetrics(ctx, group, descriptions)
	for _, row := range rows {
		if _, err := o.d.Campaigns.RecordMetrics(ctx, tx, row); err != nil {
			return err
		}
	}

	if _, err := o.d.Campaigns.TransitionStep(ctx, tx, step.ID, domain.StepAnalyzing); err != nil {
		return err
	}

	result.Data["step_id"] = step.ID.String()
	result.Data["images_processed"] = len(images)
	return nil
}

func (o *Orchestrator) executeAnalyzing(ctx context.Context, tx *gorm.DB, job Job, result *JobResult) error {
	if job.StepID == nil {
		return fmt.Errorf("analyzing job without step id")
	}
	step, flow, group, err := o.loadStepContext(ctx, tx, *job.StepID, job.FlowID)
	if err != nil {
		return err
	}

	genResult, err := o.d.GenRepo.GetResultByStepID(ctx, tx, step.ID)
	if err != nil {
		return err
	}
	if genResult == nil {
		return &services.MissingPhaseOutputError{StepID: step.ID, State: domain.StepGenerating}
	}
	images, err := o.d.GenRepo.GetImagesByResultID(ctx, tx, genResult.ID)
	if err != nil {
		return err
	}

	var scored []ScoredImage
	descByID := make(map[uuid.UUID]string, len(images))
	for _, img := range images {
		metrics, err := o.d.GenRepo.GetMetricsByImageID(ctx, tx, img.ID)
		if err != nil {
			return err
		}
		if metrics != nil {
			scored = append(scored, ScoredImage{ImageID: img.ID, Signals: SignalsFromMetrics(metrics)})
		}
		if text, ok := img.Description(); ok {
			descByID[img.ID] = text
		}
	}

	winners, others := SelectTopImagesByScore(scored, o.cfg.TopNWinners)
	if len(winners) == 0 {
		return fmt.Errorf("no scored images to pick winners from for step %s", step.ID)
	}

	winnerDescs := describeIDs(winners, descByID)
	otherDescs := describeIDs(others, descByID)

	compare := o.d.Analysis.CompareWinners(ctx, winnerDescs, otherDescs)
	refined := o.d.Refiner.Refine(ctx, genResult.Prompt, group, compare)

	var winnerEmbeddings [][]float64
	winnerSet := make(map[uuid.UUID]bool, len(winners))
	for _, id := range winners {
		winnerSet[id] = true
	}
	for _, img := range images {
		if !winnerSet[img.ID] {
			continue
		}
		for i := range img.SourceAssets {
			if len(img.SourceAssets[i].Embedding) > 0 {
				winnerEmbeddings = append(winnerEmbeddings, img.SourceAssets[i].Embedding)
			}
		}
	}
	outputEmbedding := MeanEmbedding(winnerEmbeddings)
	if outputEmbedding == nil {
		outputEmbedding = make([]float64, o.cfg.EmbeddingDim)
	}

	analysis := &domain.AnalysisResult{
		StepID:          step.ID,
		WinnerImageIDs:  datatypes.JSONSlice[uuid.UUID](winners),
		OutputEmbedding: datatypes.JSONSlice[float64](outputEmbedding),
		Insight: datatypes.NewJSONType(domain.InsightPayload{
			Note:       compare.SuccessFactors,
			NextPrompt: refined.Prompt,
		}),
		DiffTags: datatypes.JSONSlice[string](compare.Tags),
	}
	if _, err := o.d.Campaigns.RecordAnalysisResult(ctx, tx, analysis); err != nil {
		return err
	}

	if _, err := o.d.Campaigns.TransitionStep(ctx, tx, step.ID, domain.StepCompleted); err != nil {
		return err
	}

	snap, err := o.maxIterationsForFlow(ctx, tx, flow)
	if err != nil {
		return err
	}
	flowComplete := step.Iteration >= snap-1
	if flowComplete {
		o.publish(ctx, "flow.completed", map[string]any{
			"flow_id":    flow.ID,
			"iterations": step.Iteration + 1,
		})
	}

	result.Data["step_id"] = step.ID.String()
	result.Data["winner_ids"] = winners
	result.Data["flow_complete"] = flowComplete
	return nil
}

func (o *Orchestrator) executeCreateNextIteration(ctx context.Context, tx *gorm.DB, job Job, result *JobResult) error {
	if job.StepID == nil {
		return fmt.Errorf("next-iteration job without step id")
	}
	analysis, err := o.d.AnalysisRepo.GetByStepID(ctx, tx, *job.StepID)
	if err != nil {
		return err
	}
	if analysis == nil {
		return &services.MissingPhaseOutputError{StepID: *job.StepID, State: domain.StepAnalyzing}
	}

	insight := analysis.Insight.Data()
	step, err := o.d.Campaigns.CreateStep(ctx, tx, job.FlowID, analysis.OutputEmbedding, insight.NextPrompt)
	if err != nil {
		return err
	}

	result.Data["new_step_id"] = step.ID.String()
	result.Data["iteration"] = step.Iteration
	return nil
}

// baseAssets loads the spec's asset pool for a flow.
func (o *Orchestrator) baseAssets(ctx context.Context, tx *gorm.DB, flow *domain.CampaignFlow) ([]*domain.Asset, error) {
	campaign, err := o.d.CampaignRepo.GetByID(ctx, tx, flow.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, &services.CampaignNotFoundError{ID: flow.CampaignID}
	}
	spec, err := o.d.SpecRepo.GetByIDFull(ctx, tx, campaign.CampaignSpecID)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, &services.CampaignSpecNotFoundError{ID: campaign.CampaignSpecID}
	}
	out := make([]*domain.Asset, len(spec.BaseAssets))
	for i := range spec.BaseAssets {
		out[i] = &spec.BaseAssets[i]
	}
	return out, nil
}

// winnerCategoryEmbeddings collects the previous iteration's winner source
// assets and averages their embeddings per category.
func (o *Orchestrator) winnerCategoryEmbeddings(ctx context.Context, tx *gorm.DB, flowID uuid.UUID, prevIteration int) (map[domain.AssetCategory][]float64, error) {
	steps, err := o.d.StepRepo.GetByFlowID(ctx, tx, flowID)
	if err != nil {
		return nil, err
	}
	var prev *domain.FlowStep
	for _, s := range steps {
		if s.Iteration == prevIteration {
			prev = s
			break
		}
	}
	if prev == nil {
		return nil, nil
	}

	analysis, err := o.d.AnalysisRepo.GetByStepID(ctx, tx, prev.ID)
	if err != nil || analysis == nil || len(analysis.WinnerImageIDs) == 0 {
		return nil, err
	}
	genResult, err := o.d.GenRepo.GetResultByStepID(ctx, tx, prev.ID)
	if err != nil || genResult == nil {
		return nil, err
	}
	images, err := o.d.GenRepo.GetImagesByResultID(ctx, tx, genResult.ID)
	if err != nil {
		return nil, err
	}

	winnerSet := make(map[uuid.UUID]bool, len(analysis.WinnerImageIDs))
	for _, id := range analysis.WinnerImageIDs {
		winnerSet[id] = true
	}
	var winnerAssets []*domain.Asset
	for _, img := range images {
		if !winnerSet[img.ID] {
			continue
		}
		for i := range img.SourceAssets {
			winnerAssets = append(winnerAssets, &img.SourceAssets[i])
		}
	}
	if len(winnerAssets) == 0 {
		return nil, nil
	}
	return CategoryEmbeddingsFromWinners(winnerAssets), nil
}

func (o *Orchestrator) loadStepContext(ctx context.Context, tx *gorm.DB, stepID, flowID uuid.UUID) (*domain.FlowStep, *domain.CampaignFlow, *domain.TargetGroup, error) {
	step, err := o.d.StepRepo.GetByID(ctx, tx, stepID)
	if err != nil {
		return nil, nil, nil, err
	}
	if step == nil {
		return nil, nil, nil, &services.StepNotFoundError{ID: stepID}
	}
	flow, err := o.d.FlowRepo.GetByID(ctx, tx, flowID)
	if err != nil {
		return nil, nil, nil, err
	}
	if flow == nil {
		return nil, nil, nil, &services.FlowNotFoundError{ID: flowID}
	}
	group, err := o.d.GroupRepo.GetByID(ctx, tx, flow.TargetGroupID)
	if err != nil {
		return nil, nil, nil, err
	}
	return step, flow, group, nil
}

func (o *Orchestrator) maxIterationsForFlow(ctx context.Context, tx *gorm.DB, flow *domain.CampaignFlow) (int, error) {
	campaign, err := o.d.CampaignRepo.GetByID(ctx, tx, flow.CampaignID)
	if err != nil {
		return 0, err
	}
	if campaign == nil {
		return 0, &services.CampaignNotFoundError{ID: flow.CampaignID}
	}
	spec, err := o.d.SpecRepo.GetByID(ctx, tx, campaign.CampaignSpecID)
	if err != nil {
		return 0, err
	}
	if spec == nil {
		return 0, &services.CampaignSpecNotFoundError{ID: campaign.CampaignSpecID}
	}
	return spec.MaxIterations, nil
}

func describeIDs(ids []uuid.UUID, descByID map[uuid.UUID]string) []services.ImageDescription {
	out := make([]services.ImageDescription, 0, len(ids))
	for _, id := range ids {
		text, ok := descByID[id]
		if !ok {
			text = "No description"
		}
		out = append(out, services.ImageDescription{ImageID: id, Text: text})
	}
	return out
}
