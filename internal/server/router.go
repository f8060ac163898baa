package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-admission-api/internal/handler"
	internalmiddleware "github.com/noah-isme/krs-admission-api/internal/middleware"
	"github.com/noah-isme/krs-admission-api/internal/service"
	"github.com/noah-isme/krs-admission-api/pkg/config"
	"github.com/noah-isme/krs-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/krs-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/krs-admission-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Periods       *handler.PeriodHandler
	Schedules     *handler.ScheduleHandler
	Registrations *handler.RegistrationHandler
	Sections      *handler.SectionHandler
	Metrics       *handler.MetricsHandler
}

// NewRouter assembles the gin engine with the shared middleware chain.
func NewRouter(cfg *config.Config, h Handlers, metrics *service.MetricsService, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)
	r.GET("/metrics/summary", h.Metrics.Summary)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	periods := api.Group("/registration-periods")
	periods.GET("", h.Periods.List)
	periods.POST("", h.Periods.Create)
	periods.POST("/refresh", h.Periods.Refresh)
	periods.GET("/:id", h.Periods.Get)
	periods.PUT("/:id", h.Periods.Update)
	periods.DELETE("/:id", h.Periods.Delete)
	periods.GET("/:id/windows", h.Periods.ListWindows)
	periods.POST("/:id/windows", h.Periods.CreateWindow)
	periods.DELETE("/:id/windows/:windowId", h.Periods.DeleteWindow)
	api.GET("/eligibility", h.Periods.Eligibility)

	sections := api.Group("/sections")
	sections.GET("", h.Sections.List)
	sections.PUT("", h.Sections.Upsert)

	schedules := api.Group("/schedules")
	schedules.POST("/conflicts", h.Schedules.Conflicts)
	schedules.POST("/daily", h.Schedules.Daily)
	schedules.POST("/balance", h.Schedules.Balance)
	schedules.POST("/quality", h.Schedules.Quality)
	schedules.POST("/alternatives", h.Schedules.Alternatives)

	registrations := api.Group("/registrations")
	registrations.POST("", h.Registrations.Submit)
	registrations.POST("/drop", h.Registrations.Drop)
	registrations.GET("/queue/stats", h.Registrations.Stats)
	registrations.PUT("/queue/config", h.Registrations.Configure)
	registrations.DELETE("/queue/:id", h.Registrations.Cancel)

	return r
}
