package router

import (
	"github.com/gin-gonic/gin"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/api/handler"
)

// Options tune the router outside the handler dependencies
type Options struct {
	AllowedOrigins []string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	r.GET("/health", handler.Health(deps))

	processingHandler := handler.NewProcessingHandler(deps)
	contentHandler := handler.NewContentHandler(deps)

	v1 := r.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		processing := v1.Group("/processing", RequireIdentity())
		{
			// POST /api/v1/processing - Submit content for processing
			processing.POST("", processingHandler.CreateProcessing)

			// GET /api/v1/processing - List the caller's jobs
			processing.GET("", processingHandler.ListProcessing)

			// GET /api/v1/processing/:id/status - Poll job status
			processing.GET("/:id/status", processingHandler.GetStatus)
		}

		content := v1.Group("/content")
		{
			content.GET("", RequireIdentity(), contentHandler.ListMine)
			content.GET("/:id", contentHandler.GetContent)
			content.GET("/:id/stats", contentHandler.Stats)
			content.GET("/:id/events", contentHandler.Events)

			content.POST("/:id/like", RequireIdentity(), contentHandler.Like)
			content.POST("/:id/view", contentHandler.View)
			content.POST("/:id/share", contentHandler.Share)
			content.POST("/:id/tip", RequireIdentity(), contentHandler.Tip)
		}
	}

	return r
}
