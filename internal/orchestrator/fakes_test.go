package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/services"
)

// fakeStore is a shared in-memory backing for every fake repo so the whole
// pipeline can run without a database. Tests are serial, no locking.
type fakeStore struct {
	seq int64

	assets    map[uuid.UUID]*domain.Asset
	groups    map[uuid.UUID]*domain.TargetGroup
	specs     map[uuid.UUID]*domain.CampaignSpec
	campaigns map[uuid.UUID]*domain.Campaign
	flowList  []*domain.CampaignFlow
	steps     map[uuid.UUID]*domain.FlowStep
	results   map[uuid.UUID]*domain.GenerationResult
	imageList []*domain.GeneratedImage
	metrics   map[uuid.UUID]*domain.ImageMetrics
	analyses  map[uuid.UUID]*domain.AnalysisResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets:    make(map[uuid.UUID]*domain.Asset),
		groups:    make(map[uuid.UUID]*domain.TargetGroup),
		specs:     make(map[uuid.UUID]*domain.CampaignSpec),
		campaigns: make(map[uuid.UUID]*domain.Campaign),
		steps:     make(map[uuid.UUID]*domain.FlowStep),
		results:   make(map[uuid.UUID]*domain.GenerationResult),
		metrics:   make(map[uuid.UUID]*domain.ImageMetrics),
		analyses:  make(map[uuid.UUID]*domain.AnalysisResult),
	}
}

func (st *fakeStore) nextTime() time.Time {
	st.seq++
	return time.Unix(1700000000+st.seq, 0)
}

func (st *fakeStore) addAsset(name string, cat domain.AssetCategory, embedding []float64) *domain.Asset {
	a := &domain.Asset{
		ID:        uuid.New(),
		Name:      name,
		FileName:  "assets/" + name + ".png",
		Category:  cat,
		Embedding: datatypes.JSONSlice[float64](embedding),
		CreatedAt: st.nextTime(),
	}
	st.assets[a.ID] = a
	return a
}

func (st *fakeStore) addGroup(name string) *domain.TargetGroup {
	g := &domain.TargetGroup{
		ID:        uuid.New(),
		Name:      name,
		City:      "Berlin",
		AgeGroup:  "18-25",
		CreatedAt: st.nextTime(),
	}
	st.groups[g.ID] = g
	return g
}

func (st *fakeStore) addSpec(name, prompt string, maxIterations int, assets []*domain.Asset, groups []*domain.TargetGroup) *domain.CampaignSpec {
	spec := &domain.CampaignSpec{
		ID:            uuid.New(),
		Name:          name,
		BasePrompt:    prompt,
		MaxIterations: maxIterations,
		CreatedAt:     st.nextTime(),
	}
	for _, a := range assets {
		spec.BaseAssets = append(spec.BaseAssets, *a)
	}
	for _, g := range groups {
		spec.TargetGroups = append(spec.TargetGroups, *g)
	}
	st.specs[spec.ID] = spec
	return spec
}

type fakeAssetRepo struct{ st *fakeStore }

func (r *fakeAssetRepo) Create(ctx context.Context, tx *gorm.DB, assets []*domain.Asset) ([]*domain.Asset, error) {
	for _, a := range assets {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.CreatedAt = r.st.nextTime()
		r.st.assets[a.ID] = a
	}
	return assets, nil
}

func (r *fakeAssetRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Asset, error) {
	return r.st.assets[id], nil
}

func (r *fakeAssetRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Asset, error) {
	var out []*domain.Asset
	for _, id := range ids {
		if a, ok := r.st.assets[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAssetRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Asset, error) {
	var out []*domain.Asset
	for _, a := range r.st.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeAssetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

type fakeTargetGroupRepo struct{ st *fakeStore }

func (r *fakeTargetGroupRepo) Create(ctx context.Context, tx *gorm.DB, groups []*domain.TargetGroup) ([]*domain.TargetGroup, error) {
	for _, g := range groups {
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		g.CreatedAt = r.st.nextTime()
		r.st.groups[g.ID] = g
	}
	return groups, nil
}

func (r *fakeTargetGroupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.TargetGroup, error) {
	return r.st.groups[id], nil
}

func (r *fakeTargetGroupRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.TargetGroup, error) {
	var out []*domain.TargetGroup
	for _, id := range ids {
		if g, ok := r.st.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeTargetGroupRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.TargetGroup, error) {
	var out []*domain.TargetGroup
	for _, g := range r.st.groups {
		out = append(out, g)
	}
	return out, nil
}

type fakeCampaignSpecRepo struct{ st *fakeStore }

func (r *fakeCampaignSpecRepo) Create(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec) (*domain.CampaignSpec, error) {
	if spec.ID == uuid.Nil {
		spec.ID = uuid.New()
	}
	spec.CreatedAt = r.st.nextTime()
	r.st.specs[spec.ID] = spec
	return spec, nil
}

func (r *fakeCampaignSpecRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignSpec, error) {
	return r.st.specs[id], nil
}

func (r *fakeCampaignSpecRepo) GetByIDFull(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignSpec, error) {
	return r.st.specs[id], nil
}

func (r *fakeCampaignSpecRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.CampaignSpec, error) {
	var out []*domain.CampaignSpec
	for _, s := range r.st.specs {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeCampaignSpecRepo) AppendBaseAssets(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec, assets []*domain.Asset) error {
	for _, a := range assets {
		spec.BaseAssets = append(spec.BaseAssets, *a)
	}
	return nil
}

func (r *fakeCampaignSpecRepo) AppendTargetGroups(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec, groups []*domain.TargetGroup) error {
	for _, g := range groups {
		spec.TargetGroups = append(spec.TargetGroups, *g)
	}
	return nil
}

type fakeCampaignRepo struct{ st *fakeStore }

func (r *fakeCampaignRepo) Create(ctx context.Context, tx *gorm.DB, campaign *domain.Campaign) (*domain.Campaign, error) {
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	campaign.CreatedAt = r.st.nextTime()
	r.st.campaigns[campaign.ID] = campaign
	return campaign, nil
}

func (r *fakeCampaignRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Campaign, error) {
	return r.st.campaigns[id], nil
}

func (r *fakeCampaignRepo) GetBySpecID(ctx context.Context, tx *gorm.DB, specID uuid.UUID) ([]*domain.Campaign, error) {
	var out []*domain.Campaign
	for _, c := range r.st.campaigns {
		if c.CampaignSpecID == specID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Campaign, error) {
	var out []*domain.Campaign
	for _, c := range r.st.campaigns {
		out = append(out, c)
	}
	return out, nil
}

type fakeCampaignFlowRepo struct{ st *fakeStore }

func (r *fakeCampaignFlowRepo) Create(ctx context.Context, tx *gorm.DB, flows []*domain.CampaignFlow) ([]*domain.CampaignFlow, error) {
	for _, f := range flows {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.CreatedAt = r.st.nextTime()
		r.st.flowList = append(r.st.flowList, f)
	}
	return flows, nil
}

func (r *fakeCampaignFlowRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignFlow, error) {
	for _, f := range r.st.flowList {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignFlowRepo) GetByCampaignID(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) ([]*domain.CampaignFlow, error) {
	var out []*domain.CampaignFlow
	for _, f := range r.st.flowList {
		if f.CampaignID == campaignID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeCampaignFlowRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.CampaignFlow, error) {
	return append([]*domain.CampaignFlow{}, r.st.flowList...), nil
}

type fakeFlowStepRepo struct{ st *fakeStore }

func (r *fakeFlowStepRepo) Create(ctx context.Context, tx *gorm.DB, step *domain.FlowStep) (*domain.FlowStep, error) {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	step.CreatedAt = r.st.nextTime()
	r.st.steps[step.ID] = step
	return step, nil
}

func (r *fakeFlowStepRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.FlowStep, error) {
	return r.st.steps[id], nil
}

func (r *fakeFlowStepRepo) GetByFlowID(ctx context.Context, tx *gorm.DB, flowID uuid.UUID) ([]*domain.FlowStep, error) {
	var out []*domain.FlowStep
	for _, s := range r.st.steps {
		if s.FlowID == flowID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out, nil
}

func (r *fakeFlowStepRepo) GetLatestByFlowID(ctx context.Context, tx *gorm.DB, flowID uuid.UUID) (*domain.FlowStep, error) {
	steps, _ := r.GetByFlowID(ctx, tx, flowID)
	if len(steps) == 0 {
		return nil, nil
	}
	return steps[len(steps)-1], nil
}

func (r *fakeFlowStepRepo) UpdateState(ctx context.Context, tx *gorm.DB, id uuid.UUID, state domain.StepState) error {
	step, ok := r.st.steps[id]
	if !ok {
		return fmt.Errorf("step %s not found", id)
	}
	step.State = state
	return nil
}

type fakeGenerationRepo struct{ st *fakeStore }

func (r *fakeGenerationRepo) CreateResult(ctx context.Context, tx *gorm.DB, result *domain.GenerationResult) (*domain.GenerationResult, error) {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.CreatedAt = r.st.nextTime()
	r.st.results[result.ID] = result
	return result, nil
}

func (r *fakeGenerationRepo) GetResultByStepID(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*domain.GenerationResult, error) {
	for _, res := range r.st.results {
		if res.StepID == stepID {
			return res, nil
		}
	}
	return nil, nil
}

func (r *fakeGenerationRepo) DeleteResult(ctx context.Context, tx *gorm.DB, resultID uuid.UUID) error {
	kept := r.st.imageList[:0]
	for _, img := range r.st.imageList {
		if img.GenerationResultID == resultID {
			delete(r.st.metrics, img.ID)
			continue
		}
		kept = append(kept, img)
	}
	r.st.imageList = kept
	delete(r.st.results, resultID)
	return nil
}

func (r *fakeGenerationRepo) AppendSelectedAssets(ctx context.Context, tx *gorm.DB, result *domain.GenerationResult, assets []*domain.Asset) error {
	for _, a := range assets {
		result.SelectedAssets = append(result.SelectedAssets, *a)
	}
	return nil
}

func (r *fakeGenerationRepo) CreateImages(ctx context.Context, tx *gorm.DB, images []*domain.GeneratedImage) ([]*domain.GeneratedImage, error) {
	for _, img := range images {
		if img.ID == uuid.Nil {
			img.ID = uuid.New()
		}
		img.CreatedAt = r.st.nextTime()
		r.st.imageList = append(r.st.imageList, img)
	}
	return images, nil
}

func (r *fakeGenerationRepo) GetImageByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.GeneratedImage, error) {
	for _, img := range r.st.imageList {
		if img.ID == id {
			return img, nil
		}
	}
	return nil, nil
}

func (r *fakeGenerationRepo) GetImagesByResultID(ctx context.Context, tx *gorm.DB, resultID uuid.UUID) ([]*domain.GeneratedImage, error) {
	var out []*domain.GeneratedImage
	for _, img := range r.st.imageList {
		if img.GenerationResultID == resultID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (r *fakeGenerationRepo) UpdateImageTags(ctx context.Context, tx *gorm.DB, id uuid.UUID, tags []string) error {
	img, err := r.GetImageByID(ctx, tx, id)
	if err != nil || img == nil {
		return fmt.Errorf("image %s not found", id)
	}
	img.MetadataTags = datatypes.JSONSlice[string](tags)
	return nil
}

func (r *fakeGenerationRepo) AppendSourceAssets(ctx context.Context, tx *gorm.DB, image *domain.GeneratedImage, assets []*domain.Asset) error {
	for _, a := range assets {
		image.SourceAssets = append(image.SourceAssets, *a)
	}
	return nil
}

func (r *fakeGenerationRepo) UpsertMetrics(ctx context.Context, tx *gorm.DB, metrics *domain.ImageMetrics) (*domain.ImageMetrics, error) {
	if existing, ok := r.st.metrics[metrics.ImageID]; ok {
		metrics.ID = existing.ID
	} else if metrics.ID == uuid.Nil {
		metrics.ID = uuid.New()
	}
	metrics.ComputeDerived()
	r.st.metrics[metrics.ImageID] = metrics
	return metrics, nil
}

func (r *fakeGenerationRepo) GetMetricsByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (*domain.ImageMetrics, error) {
	return r.st.metrics[imageID], nil
}

func (r *fakeGenerationRepo) GetMetricsByImageIDs(ctx context.Context, tx *gorm.DB, imageIDs []uuid.UUID) ([]*domain.ImageMetrics, error) {
	var out []*domain.ImageMetrics
	for _, id := range imageIDs {
		if m, ok := r.st.metrics[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeAnalysisRepo struct{ st *fakeStore }

func (r *fakeAnalysisRepo) Create(ctx context.Context, tx *gorm.DB, result *domain.AnalysisResult) (*domain.AnalysisResult, error) {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.CreatedAt = r.st.nextTime()
	r.st.analyses[result.StepID] = result
	return result, nil
}

func (r *fakeAnalysisRepo) GetByStepID(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*domain.AnalysisResult, error) {
	return r.st.analyses[stepID], nil
}

func (r *fakeAnalysisRepo) GetByStepIDs(ctx context.Context, tx *gorm.DB, stepIDs []uuid.UUID) ([]*domain.AnalysisResult, error) {
	var out []*domain.AnalysisResult
	for _, id := range stepIDs {
		if a, ok := r.st.analyses[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// fakeGenerator produces sequentially named files, or fails every request
// when failAll is set.
type fakeGenerator struct {
	n       int
	failAll bool
}

func (g *fakeGenerator) Generate(ctx context.Context, req services.GenerateRequest) services.GenerateResult {
	if g.failAll {
		return services.GenerateResult{Success: false, Err: errors.New("provider down")}
	}
	g.n++
	return services.GenerateResult{
		Success:      true,
		FileName:     fmt.Sprintf("generated/img-%03d.png", g.n),
		RequestID:    fmt.Sprintf("req-%03d", g.n),
		ModelVersion: "flux-2-pro",
	}
}

type fakeDescriber struct{ fallback bool }

func (d *fakeDescriber) Describe(ctx context.Context, fileName string, prompt string) services.DescribeResult {
	if d.fallback {
		return services.DescribeResult{Text: "A generic image", UsedFallback: true}
	}
	return services.DescribeResult{Text: "Creative shot stored at " + fileName}
}

// fakeAnalytics ramps clicks and conversions by position so later images
// always score higher.
type fakeAnalytics struct{}

func (a *fakeAnalytics) SimulateMetrics(ctx context.Context, targetGroup *domain.TargetGroup, descriptions []services.ImageDescription) []services.ImageAnalytics {
	out := make([]services.ImageAnalytics, 0, len(descriptions))
	for i, d := range descriptions {
		out = append(out, services.ImageAnalytics{
			ImageID:     d.ImageID,
			Impressions: 10000,
			Clicks:      100 * (i + 1),
			Conversions: 10 * (i + 1),
			Cost:        200,
		})
	}
	return out
}

type fakeAnalysis struct{ compared int }

func (a *fakeAnalysis) CompareWinners(ctx context.Context, winners, others []services.ImageDescription) services.CompareResult {
	a.compared++
	return services.CompareResult{
		Similarities:   []string{"shared palette"},
		Tags:           []string{"bold", "high-contrast"},
		SuccessFactors: "winners used bolder colors",
	}
}

type fakeRefiner struct{ refined int }

func (r *fakeRefiner) Refine(ctx context.Context, currentPrompt string, targetGroup *domain.TargetGroup, comparison services.CompareResult) services.RefineResult {
	r.refined++
	return services.RefineResult{Prompt: currentPrompt + " refined"}
}

type fakeNotifier struct{ events []string }

func (n *fakeNotifier) Publish(ctx context.Context, event string, payload any) error {
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) sawEvent(event string) bool {
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}
