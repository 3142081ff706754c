package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sagewell/transcripta-backend/internal/handlers"
)

type RouterConfig struct {
	IngestHandler *handlers.IngestHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
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
		ingest := api.Group("/ingest")
		ingest.POST("/upload", cfg.IngestHandler.Upload)
		ingest.GET("/batches/:id", cfg.IngestHandler.GetBatch)
		ingest.POST("/batches/:id/retry", cfg.IngestHandler.RetryBatch)
		ingest.POST("/episodes/:id/namespace", cfg.IngestHandler.OverrideNamespace)
	}

	return router
}
