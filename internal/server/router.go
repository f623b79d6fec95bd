package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/adloophq/adloop-backend/internal/handlers"
)

type RouterConfig struct {
	AssetHandler       *handlers.AssetHandler
	TargetGroupHandler *handlers.TargetGroupHandler
	CampaignHandler    *handlers.CampaignHandler
	JobsHandler        *handlers.JobsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Assets
		api.POST("/assets", cfg.AssetHandler.CreateAssets)
		api.GET("/assets", cfg.AssetHandler.ListAssets)
		api.GET("/assets/:id", cfg.AssetHandler.GetAsset)

		// Target groups
		api.POST("/target-groups", cfg.TargetGroupHandler.CreateTargetGroups)
		api.GET("/target-groups", cfg.TargetGroupHandler.ListTargetGroups)

		// Campaign specs and campaigns
		api.POST("/campaign-specs", cfg.CampaignHandler.CreateCampaignSpec)
		api.GET("/campaign-specs", cfg.CampaignHandler.ListCampaignSpecs)
		api.GET("/campaign-specs/:id", cfg.CampaignHandler.GetCampaignSpec)
		api.POST("/campaigns", cfg.CampaignHandler.CreateCampaign)
		api.GET("/campaigns", cfg.CampaignHandler.ListCampaigns)
		api.GET("/campaigns/:id/status", cfg.CampaignHandler.GetCampaignStatus)
		api.GET("/flows/:id/status", cfg.CampaignHandler.GetFlowStatus)

		// Jobs
		api.GET("/jobs/pending", cfg.JobsHandler.GetPendingJobs)
		api.POST("/jobs/run", cfg.JobsHandler.RunJobs)
	}

	return router
}
