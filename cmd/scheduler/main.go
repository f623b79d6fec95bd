package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adloophq/adloop-backend/internal/db"
	"github.com/adloophq/adloop-backend/internal/logger"
	"github.com/adloophq/adloop-backend/internal/orchestrator"
	"github.com/adloophq/adloop-backend/internal/repos"
	"github.com/adloophq/adloop-backend/internal/services"
	"github.com/adloophq/adloop-backend/internal/utils"
)

// Standalone worker: polls for due jobs across every campaign and executes
// them serially. Run alongside the API server, or alone for batch runs.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	assetRepo := repos.NewAssetRepo(thePG, log)
	targetGroupRepo := repos.NewTargetGroupRepo(thePG, log)
	specRepo := repos.NewCampaignSpecRepo(thePG, log)
	campaignRepo := repos.NewCampaignRepo(thePG, log)
	flowRepo := repos.NewCampaignFlowRepo(thePG, log)
	stepRepo := repos.NewFlowStepRepo(thePG, log)
	generationRepo := repos.NewGenerationRepo(thePG, log)
	analysisRepo := repos.NewAnalysisRepo(thePG, log)

	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	fluxClient, err := services.NewFluxClient(log, bucketService)
	if err != nil {
		log.Error("Could not init FluxClient", "error", err)
		os.Exit(1)
	}

	describeService := services.NewDescribeService(log, openaiClient, bucketService)
	analyticsService := services.NewAnalyticsService(log, openaiClient)
	analysisService := services.NewAnalysisService(log, openaiClient)

	var notifier orchestrator.Notifier
	redisNotifier, err := services.NewRedisNotifier(log)
	if err != nil {
		log.Warn("Could not init RedisNotifier, events disabled", "error", err)
	} else {
		notifier = redisNotifier
		defer redisNotifier.Close()
	}

	campaignService := services.NewCampaignService(
		log,
		specRepo,
		campaignRepo,
		flowRepo,
		stepRepo,
		generationRepo,
		analysisRepo,
		assetRepo,
		targetGroupRepo,
	)

	orch := orchestrator.New(log, orchestrator.DefaultConfig(), orchestrator.Deps{
		DB:           thePG,
		SpecRepo:     specRepo,
		CampaignRepo: campaignRepo,
		FlowRepo:     flowRepo,
		StepRepo:     stepRepo,
		GenRepo:      generationRepo,
		AnalysisRepo: analysisRepo,
		GroupRepo:    targetGroupRepo,
		Campaigns:    campaignService,
		Generator:    fluxClient,
		Describer:    describeService,
		Analytics:    analyticsService,
		Analysis:     analysisService,
		Refiner:      analysisService,
		Notifier:     notifier,
	})

	pollSeconds := utils.GetEnvAsInt("SCHEDULER_POLL_SECONDS", 5, log)
	maxJobs := utils.GetEnvAsInt("SCHEDULER_MAX_JOBS_PER_RUN", 10, log)

	scheduler := orchestrator.NewScheduler(log, orch, orchestrator.SchedulerConfig{
		PollInterval:  time.Duration(pollSeconds) * time.Second,
		MaxJobsPerRun: maxJobs,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.RunLoop(ctx); err != nil && err != context.Canceled {
		log.Error("Scheduler loop ended", "error", err)
	}
}
