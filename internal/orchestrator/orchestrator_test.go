package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
	"github.com/adloophq/adloop-backend/internal/services"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

type testEnv struct {
	store     *fakeStore
	orch      *Orchestrator
	service   *services.CampaignService
	gen       *fakeGenerator
	describer *fakeDescriber
	analysis  *fakeAnalysis
	refiner   *fakeRefiner
	notifier  *fakeNotifier
	spec      *domain.CampaignSpec
}

// newTestEnv wires the full pipeline against in-memory fakes: a spec with
// two assets per category and numGroups target groups, ready to initialize.
func newTestEnv(t *testing.T, maxIterations, numGroups int) *testEnv {
	t.Helper()
	log := testLogger(t)
	st := newFakeStore()

	emb := func(i int) []float64 {
		v := make([]float64, 8)
		v[i%8] = 1
		v[(i+1)%8] = 0.5
		return v
	}
	assets := []*domain.Asset{
		st.addAsset("model-a", domain.CategoryModel, emb(0)),
		st.addAsset("model-b", domain.CategoryModel, emb(1)),
		st.addAsset("logo-a", domain.CategoryLogo, emb(2)),
		st.addAsset("logo-b", domain.CategoryLogo, emb(3)),
		st.addAsset("product-a", domain.CategoryProduct, emb(4)),
		st.addAsset("product-b", domain.CategoryProduct, emb(5)),
	}

	var groups []*domain.TargetGroup
	for i := 0; i < numGroups; i++ {
		groups = append(groups, st.addGroup("group-"+string(rune('a'+i))))
	}

	spec := st.addSpec("summer-drop", "A vibrant summer campaign", maxIterations, assets, groups)

	specRepo := &fakeCampaignSpecRepo{st: st}
	campaignRepo := &fakeCampaignRepo{st: st}
	flowRepo := &fakeCampaignFlowRepo{st: st}
	stepRepo := &fakeFlowStepRepo{st: st}
	genRepo := &fakeGenerationRepo{st: st}
	analysisRepo := &fakeAnalysisRepo{st: st}
	assetRepo := &fakeAssetRepo{st: st}
	groupRepo := &fakeTargetGroupRepo{st: st}

	service := services.NewCampaignService(log, specRepo, campaignRepo, flowRepo, stepRepo, genRepo, analysisRepo, assetRepo, groupRepo)

	gen := &fakeGenerator{}
	describer := &fakeDescriber{}
	analysis := &fakeAnalysis{}
	refiner := &fakeRefiner{}
	notifier := &fakeNotifier{}

	cfg := Config{
		NumImagesPerStep: 3,
		TopNWinners:      2,
		ImageWidth:       512,
		ImageHeight:      512,
		BaseCategory:     domain.CategoryModel,
		EmbeddingDim:     8,
	}
	orch := New(log, cfg, Deps{
		SpecRepo:     specRepo,
		CampaignRepo: campaignRepo,
		FlowRepo:     flowRepo,
		StepRepo:     stepRepo,
		GenRepo:      genRepo,
		AnalysisRepo: analysisRepo,
		GroupRepo:    groupRepo,
		Campaigns:    service,
		Generator:    gen,
		Describer:    describer,
		Analytics:    &fakeAnalytics{},
		Analysis:     analysis,
		Refiner:      refiner,
		Notifier:     notifier,
		Rand:         rand.New(rand.NewSource(1)),
	})

	return &testEnv{
		store:     st,
		orch:      orch,
		service:   service,
		gen:       gen,
		describer: describer,
		analysis:  analysis,
		refiner:   refiner,
		notifier:  notifier,
		spec:      spec,
	}
}

func (e *testEnv) drain(t *testing.T, campaignID *uuid.UUID, max int) []JobResult {
	t.Helper()
	var results []JobResult
	for i := 0; i < max; i++ {
		res, err := e.orch.RunNextJob(context.Background(), campaignID)
		if err != nil {
			t.Fatalf("RunNextJob: %v", err)
		}
		if res == nil {
			return results
		}
		if !res.Success {
			t.Fatalf("job %s failed: %s", res.Job.Type, res.Error)
		}
		results = append(results, *res)
	}
	t.Fatalf("flow did not finish within %d jobs", max)
	return nil
}

func (e *testEnv) resultsForStep(stepID uuid.UUID) []*domain.GenerationResult {
	var out []*domain.GenerationResult
	for _, res := range e.store.results {
		if res.StepID == stepID {
			out = append(out, res)
		}
	}
	return out
}

func TestFlowRunsToCompletion(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	campaign, jobs, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}
	if len(campaign.Flows) != 1 {
		t.Fatalf("flows: want=1 got=%d", len(campaign.Flows))
	}
	if len(jobs) != 1 || jobs[0].Type != JobCreateFirstStep {
		t.Fatalf("initial jobs: want one create_first_step, got %v", jobs)
	}

	results := env.drain(t, &campaign.ID, 20)

	wantSequence := []JobType{
		JobCreateFirstStep,
		JobRunGenerating,
		JobRunCollectingData,
		JobRunAnalyzing,
		JobCreateNextIteration,
		JobRunGenerating,
		JobRunCollectingData,
		JobRunAnalyzing,
	}
	if len(results) != len(wantSequence) {
		t.Fatalf("job count: want=%d got=%d", len(wantSequence), len(results))
	}
	for i, want := range wantSequence {
		if results[i].Job.Type != want {
			t.Fatalf("job %d: want=%s got=%s", i, want, results[i].Job.Type)
		}
	}

	flowID := campaign.Flows[0].ID
	steps, _ := (&fakeFlowStepRepo{st: env.store}).GetByFlowID(ctx, nil, flowID)
	if len(steps) != 2 {
		t.Fatalf("steps: want=2 got=%d", len(steps))
	}
	for _, step := range steps {
		if step.State != domain.StepCompleted {
			t.Fatalf("step %d state: want=completed got=%s", step.Iteration, step.State)
		}
		analysis := env.store.analyses[step.ID]
		if analysis == nil {
			t.Fatalf("step %d missing analysis result", step.Iteration)
		}
		if len(analysis.WinnerImageIDs) != 2 {
			t.Fatalf("step %d winners: want=2 got=%d", step.Iteration, len(analysis.WinnerImageIDs))
		}
	}

	// Iteration 1 must be seeded from iteration 0's analysis output.
	step1 := steps[1]
	if !strings.HasSuffix(step1.InputInsights, "refined") {
		t.Fatalf("iteration 1 insights not refined: %q", step1.InputInsights)
	}
	if len(step1.InputEmbedding) != 8 {
		t.Fatalf("iteration 1 embedding: want dim 8, got %d", len(step1.InputEmbedding))
	}
	genResults := env.resultsForStep(step1.ID)
	if len(genResults) != 1 {
		t.Fatalf("iteration 1 generation results: want=1 got=%d", len(genResults))
	}
	if genResults[0].Prompt != step1.InputInsights {
		t.Fatalf("iteration 1 should generate with the refined prompt, got %q", genResults[0].Prompt)
	}

	// Every image carries a description tag and metrics.
	for _, img := range env.store.imageList {
		if _, ok := img.Description(); !ok {
			t.Fatalf("image %s missing description tag", img.ID)
		}
		if env.store.metrics[img.ID] == nil {
			t.Fatalf("image %s missing metrics", img.ID)
		}
	}

	for _, event := range []string{"campaign.initialized", "job.completed", "flow.completed"} {
		if !env.notifier.sawEvent(event) {
			t.Fatalf("event %q never published (saw %v)", event, env.notifier.events)
		}
	}
}

func TestGeneratingRetriesWithoutDuplicateResults(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	campaign, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}

	// First step created, then every generation request fails.
	if res, err := env.orch.RunNextJob(ctx, &campaign.ID); err != nil || !res.Success {
		t.Fatalf("create_first_step: res=%+v err=%v", res, err)
	}
	env.gen.failAll = true
	res, err := env.orch.RunNextJob(ctx, &campaign.ID)
	if err != nil {
		t.Fatalf("RunNextJob: %v", err)
	}
	if res.Success {
		t.Fatalf("generating should fail when every image fails")
	}
	if !strings.Contains(res.Error, "generation produced no images") {
		t.Fatalf("want generation exhausted error, got %q", res.Error)
	}

	flowID := campaign.Flows[0].ID
	step, _ := (&fakeFlowStepRepo{st: env.store}).GetLatestByFlowID(ctx, nil, flowID)
	if step.State != domain.StepGenerating {
		t.Fatalf("failed job must leave state untouched, got %s", step.State)
	}

	// Recovery: the scan re-emits the same job and the stale result from the
	// failed pass is replaced, not duplicated.
	env.gen.failAll = false
	res, err = env.orch.RunNextJob(ctx, &campaign.ID)
	if err != nil || !res.Success {
		t.Fatalf("retry: res=%+v err=%v", res, err)
	}
	if res.Job.Type != JobRunGenerating {
		t.Fatalf("retry job: want=%s got=%s", JobRunGenerating, res.Job.Type)
	}

	genResults := env.resultsForStep(step.ID)
	if len(genResults) != 1 {
		t.Fatalf("generation results after retry: want=1 got=%d", len(genResults))
	}
	images, _ := (&fakeGenerationRepo{st: env.store}).GetImagesByResultID(ctx, nil, genResults[0].ID)
	if len(images) != 3 {
		t.Fatalf("images after retry: want=3 got=%d", len(images))
	}
	if step.State != domain.StepCollecting {
		t.Fatalf("retried step should advance, got %s", step.State)
	}
}

func TestFlowCompletesWithDegradedDescriptions(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	env.describer.fallback = true
	ctx := context.Background()

	campaign, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}

	// A dead vision provider must not stall the pipeline: descriptions
	// degrade to the fixed fallback text and everything else proceeds.
	results := env.drain(t, &campaign.ID, 20)
	if len(results) != 8 {
		t.Fatalf("job count: want=8 got=%d", len(results))
	}

	steps, _ := (&fakeFlowStepRepo{st: env.store}).GetByFlowID(ctx, nil, campaign.Flows[0].ID)
	for _, step := range steps {
		if step.State != domain.StepCompleted {
			t.Fatalf("step %d state: want=completed got=%s", step.Iteration, step.State)
		}
	}
	for _, img := range env.store.imageList {
		text, ok := img.Description()
		if !ok || text != "A generic image" {
			t.Fatalf("image %s description: want fallback text, got %q", img.ID, text)
		}
	}
}

func TestPendingJobsSummary(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	ctx := context.Background()

	campaign, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}

	summary, err := env.orch.GetPendingJobsSummary(ctx, &campaign.ID)
	if err != nil {
		t.Fatalf("GetPendingJobsSummary: %v", err)
	}
	if summary.Total != 2 {
		t.Fatalf("total: want=2 got=%d", summary.Total)
	}
	if summary.ByType[JobCreateFirstStep] != 2 {
		t.Fatalf("by_type: want 2 create_first_step, got %v", summary.ByType)
	}
}

func TestRunJobsBounded(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	campaign, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}

	results, err := env.orch.RunJobs(ctx, &campaign.ID, 3)
	if err != nil {
		t.Fatalf("RunJobs: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("bounded run: want=3 jobs got=%d", len(results))
	}
	if results[2].Job.Type != JobRunCollectingData {
		t.Fatalf("third job: want=%s got=%s", JobRunCollectingData, results[2].Job.Type)
	}
}

func TestInitializeCampaignRejectsSecondRun(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	if _, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID); err != nil {
		t.Fatalf("first init: %v", err)
	}

	_, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	var dup *services.CampaignAlreadyExistsError
	if !errors.As(err, &dup) {
		t.Fatalf("second init: want CampaignAlreadyExistsError, got %v", err)
	}
	if dup.SpecID != env.spec.ID {
		t.Fatalf("error spec id: want=%s got=%s", env.spec.ID, dup.SpecID)
	}
}

func TestTransitionGuards(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	campaign, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}
	step, err := env.service.CreateStep(ctx, nil, campaign.Flows[0].ID, nil, "")
	if err != nil {
		t.Fatalf("CreateStep: %v", err)
	}

	// Skipping a state is rejected.
	_, err = env.service.TransitionStep(ctx, nil, step.ID, domain.StepAnalyzing)
	var invalid *services.InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("skip transition: want InvalidStateTransitionError, got %v", err)
	}

	// The forward edge requires the phase output to exist.
	_, err = env.service.TransitionStep(ctx, nil, step.ID, domain.StepCollecting)
	var missing *services.MissingPhaseOutputError
	if !errors.As(err, &missing) {
		t.Fatalf("transition without output: want MissingPhaseOutputError, got %v", err)
	}
}

func TestPendingJobsPrioritizesStepCreation(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	ctx := context.Background()

	campaign, jobs, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("initial jobs: want=2 got=%d", len(jobs))
	}

	// Advance flow 1 only: its next job (run_generating, priority 1) must
	// yield to flow 2's create_first_step (priority 0).
	res, err := env.orch.RunNextJob(ctx, &campaign.ID)
	if err != nil || !res.Success {
		t.Fatalf("first job: res=%+v err=%v", res, err)
	}

	next, err := env.orch.NextJob(ctx, &campaign.ID)
	if err != nil {
		t.Fatalf("NextJob: %v", err)
	}
	if next.Type != JobCreateFirstStep {
		t.Fatalf("next job: want=%s got=%s", JobCreateFirstStep, next.Type)
	}
	if next.FlowID != campaign.Flows[1].ID {
		t.Fatalf("next job flow: want=%s got=%s", campaign.Flows[1].ID, next.FlowID)
	}
}

func TestSchedulerRunOnceDrainsFlow(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	if _, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID); err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}

	sched := NewScheduler(testLogger(t), env.orch, SchedulerConfig{MaxJobsPerRun: 20})
	results, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(results) != 8 {
		t.Fatalf("first pass: want=8 jobs got=%d", len(results))
	}

	results, err = sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("completed flow should yield no work, got %d jobs", len(results))
	}
}

func TestSchedulerStopsPassOnFailedJob(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	if _, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID); err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}
	env.gen.failAll = true

	sched := NewScheduler(testLogger(t), env.orch, SchedulerConfig{MaxJobsPerRun: 20})
	results, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// create_first_step succeeds, run_generating fails, pass stops.
	if len(results) != 2 {
		t.Fatalf("pass length: want=2 got=%d", len(results))
	}
	if results[1].Success {
		t.Fatalf("second job should have failed")
	}
}

func TestCampaignAndFlowStatus(t *testing.T) {
	env := newTestEnv(t, 2, 1)
	ctx := context.Background()

	campaign, _, err := env.orch.InitializeCampaign(ctx, env.spec.ID)
	if err != nil {
		t.Fatalf("InitializeCampaign: %v", err)
	}
	env.drain(t, &campaign.ID, 20)

	status, err := env.orch.GetCampaignStatus(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetCampaignStatus: %v", err)
	}
	if status.TotalFlows != 1 || status.PendingJobs != 0 {
		t.Fatalf("status: want 1 flow / 0 pending, got %d/%d", status.TotalFlows, status.PendingJobs)
	}
	if status.Flows[0].NextJob != "complete" {
		t.Fatalf("flow next job: want=complete got=%s", status.Flows[0].NextJob)
	}
	if status.Flows[0].CurrentState != string(domain.StepCompleted) {
		t.Fatalf("flow state: want=completed got=%s", status.Flows[0].CurrentState)
	}

	flowStatus, err := env.orch.GetFlowStatus(ctx, campaign.Flows[0].ID)
	if err != nil {
		t.Fatalf("GetFlowStatus: %v", err)
	}
	if len(flowStatus.Steps) != 2 {
		t.Fatalf("flow steps: want=2 got=%d", len(flowStatus.Steps))
	}
	for _, step := range flowStatus.Steps {
		if !step.HasGenerationResult || !step.HasAnalysisResult {
			t.Fatalf("step %d missing phase output: %+v", step.Iteration, step)
		}
		if step.ImageCount != 3 {
			t.Fatalf("step %d images: want=3 got=%d", step.Iteration, step.ImageCount)
		}
	}

	if _, err := env.orch.GetCampaignStatus(ctx, uuid.New()); err == nil {
		t.Fatalf("unknown campaign should error")
	}
}
