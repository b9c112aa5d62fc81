package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/zistudy/zistudy-backend/internal/handlers"
	"github.com/zistudy/zistudy-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleware
	AIHandler      *handlers.AIHandler
	JobsHandler    *handlers.JobsHandler
	CardsHandler   *handlers.CardsHandler
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
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// AI generation
	api.POST("/ai/study-cards/generate", cfg.AIHandler.GenerateStudyCards)

	// Jobs
	api.GET("/jobs", cfg.JobsHandler.ListJobs)
	api.GET("/jobs/:id", cfg.JobsHandler.GetJobByID)

	// Cards
	api.GET("/cards", cfg.CardsHandler.ListCards)
	api.GET("/cards/:id", cfg.CardsHandler.GetCardByID)
	api.DELETE("/cards/:id", cfg.CardsHandler.DeleteCard)

	return router
}
