package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/http/handlers"
	"github.com/fixflow/backend/internal/http/middleware"

	_ "github.com/fixflow/backend/docs"
)

func Router(cfg config.Config, h *handlers.Handler, gatherer prometheus.Gatherer, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(middleware.Timeout(cfg.RequestTimeout))
	{
		api.GET("/technicians", h.TechniciansList)
		api.GET("/technicians/:id", h.TechnicianDetails)
		api.GET("/technicians/:id/rate-limit", h.TechnicianRateLimit)
		api.POST("/reports", h.ReportCreate)
		api.GET("/incidents/:id", h.IncidentDetails)
		api.PATCH("/incidents/:id/status", h.IncidentStatus)
		api.GET("/schedules", h.SchedulesList)
		api.POST("/schedules", h.ScheduleCreate)
		api.PATCH("/schedules/:id/status", h.ScheduleStatus)
		api.GET("/analytics/aging", h.AgingAnalysis)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/alerts", h.AlertSubmit)
		admin.POST("/alerts/batch", h.AlertBatch)
		admin.POST("/escalations/sweep", h.EscalationSweep)
		admin.PATCH("/technicians/:id/availability", h.TechnicianAvailability)
		admin.PATCH("/technicians/:id/assignments", h.TechnicianAssignments)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
