package main

import (
	"fmt"
	"os"

	"github.com/adloophq/adloop-backend/internal/db"
	"github.com/adloophq/adloop-backend/internal/handlers"
	"github.com/adloophq/adloop-backend/internal/logger"
	"github.com/adloophq/adloop-backend/internal/orchestrator"
	"github.com/adloophq/adloop-backend/internal/repos"
	"github.com/adloophq/adloop-backend/internal/server"
	"github.com/adloophq/adloop-backend/internal/services"
	"github.com/adloophq/adloop-backend/internal/utils"
)

func main() {
	// Logger
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

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	assetRepo := repos.NewAssetRepo(thePG, log)
	targetGroupRepo := repos.NewTargetGroupRepo(thePG, log)
	specRepo := repos.NewCampaignSpecRepo(thePG, log)
	campaignRepo := repos.NewCampaignRepo(thePG, log)
	flowRepo := repos.NewCampaignFlowRepo(thePG, log)
	stepRepo := repos.NewFlowStepRepo(thePG, log)
	generationRepo := repos.NewGenerationRepo(thePG, log)
	analysisRepo := repos.NewAnalysisRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
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

	embeddingService := services.NewEmbeddingService(log, openaiClient)
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

	assetService := services.NewAssetService(log, assetRepo, targetGroupRepo, embeddingService)
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

	// Orchestrator
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

	// Handlers
	log.Info("Setting up handlers from main...")
	assetHandler := handlers.NewAssetHandler(assetService)
	targetGroupHandler := handlers.NewTargetGroupHandler(assetService)
	campaignHandler := handlers.NewCampaignHandler(campaignService, orch)
	jobsHandler := handlers.NewJobsHandler(orch)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AssetHandler:       assetHandler,
		TargetGroupHandler: targetGroupHandler,
		CampaignHandler:    campaignHandler,
		JobsHandler:        jobsHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
