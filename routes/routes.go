package routes

import (
	"time"

	"salonflow/handlers"
	"salonflow/middleware"
	"salonflow/services/catalog"
	"salonflow/services/gate"
	"salonflow/services/processor"

	statsRepo "salonflow/database/repository/stats"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps carries the services the HTTP surface exposes.
type Deps struct {
	Processor *processor.Processor
	Gate      *gate.Gate
	Catalog   *catalog.Service
	Stats     statsRepo.StatsRepository
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", handlers.HealthHandler)
	r.POST("/webhooks/messaging", handlers.WebhookHandler(deps.Processor))

	admin := r.Group("/api/admin")
	{
		admin.Use(middleware.AdminAuthMiddleware())
		admin.POST("/conversations/:id/pause", handlers.PauseConversationHandler(deps.Gate))
		admin.POST("/conversations/:id/resume", handlers.ResumeConversationHandler(deps.Gate))
		admin.GET("/stats", handlers.StatsHandler(deps.Stats))
		admin.GET("/catalog/services", handlers.ListServicesHandler(deps.Catalog))
		admin.POST("/catalog/services", handlers.SeedServiceHandler(deps.Catalog))
		admin.GET("/catalog/providers", handlers.ListProvidersHandler(deps.Catalog))
		admin.POST("/catalog/providers", handlers.SeedProviderHandler(deps.Catalog))
	}
}
