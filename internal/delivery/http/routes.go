package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shelfscout/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger zerolog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	if cfg.RateLimit.PerIP > 0 {
		router.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", handler.CreateRun)
			runs.POST("/collect", handler.CollectRun)
			runs.GET("", handler.ListRuns)
			runs.GET("/:runId", handler.GetRun)
			runs.DELETE("/:runId", handler.DeleteRun)
			runs.GET("/:runId/search", handler.SearchProducts)
			runs.GET("/:runId/rankings", handler.GetRankings)
			runs.GET("/:runId/rankings/:category", handler.GetCategoryRanking)
			runs.GET("/:runId/groups", handler.ListGroups)
			runs.GET("/:runId/groups/:groupId", handler.GetGroup)
			runs.GET("/:runId/groups/:groupId/similar", handler.GetSimilar)
			runs.GET("/:runId/export.csv", handler.ExportCSV)
		}

		v1.GET("/trending", handler.GetTrending)
		v1.GET("/categories", handler.GetCategories)
	}

	return router
}
