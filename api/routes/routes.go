package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/numbers2pdf/api/handlers"
	"github.com/feichai0017/numbers2pdf/api/middleware"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

type Options struct {
	// MaxBodyBytes caps upload requests; zero disables the cap.
	MaxBodyBytes int64
	Logger       logger.Logger
}

// SetupRoutes registers middleware and routes on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	r.Use(middleware.RequestID())
	if opts.Logger != nil {
		r.Use(middleware.AccessLog(opts.Logger.Named("access")))
	}
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health.Check)

	conversions := v1.Group("/conversions")
	{
		upload := middleware.BodyLimit(opts.MaxBodyBytes)
		conversions.POST("", upload, h.Conversion.Convert)
		conversions.POST("/async", upload, h.Conversion.Submit)
		conversions.GET("/:taskId", h.Conversion.GetStatus)
		conversions.GET("/:taskId/download", h.Conversion.Download)
		conversions.DELETE("/:taskId", h.Conversion.Cancel)
	}
}
