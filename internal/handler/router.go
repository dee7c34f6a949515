package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth      *AuthHandler
	Timetable *TimetableHandler
	Notice    *NoticeHandler
	Metrics   *MetricsHandler
}

// RouteConfig carries the cross-cutting dependencies of the route table.
// LoginLimiter, when set, guards POST /auth/login.
type RouteConfig struct {
	Prefix       string
	Validator    middleware.TokenValidator
	Logger       *zap.Logger
	LoginLimiter gin.HandlerFunc
}

// RegisterRoutes mounts the API on r. Health checks and metrics live at the root, everything else under the prefix.
func RegisterRoutes(r gin.IRouter, cfg RouteConfig, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(normalizePrefix(cfg.Prefix))
	if cfg.LoginLimiter != nil {
		api.POST("/auth/login", cfg.LoginLimiter, h.Auth.Login)
	} else {
		api.POST("/auth/login", h.Auth.Login)
	}
	api.GET("/notices/download", h.Notice.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(cfg.Validator))
	mountSecured(secured, cfg.Logger, h)
}

func mountSecured(secured gin.IRouter, logger *zap.Logger, h Handlers) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	operator := middleware.RequireRoles(models.RoleAdmin, models.RoleOperator)

	secured.GET("/auth/me", operator, h.Auth.Me)
	secured.GET("/status", operator, h.Metrics.Status)

	timetable := secured.Group("/timetable")
	timetable.POST("/import", admin, middleware.Audit(logger, "timetable.import"), h.Timetable.Import)
	timetable.POST("/import/json", admin, middleware.Audit(logger, "timetable.import"), h.Timetable.ImportJSON)
	timetable.POST("/rebuild", admin, middleware.Audit(logger, "timetable.rebuild"), h.Timetable.Rebuild)
	timetable.GET("/snapshot", operator, h.Timetable.Snapshot)
	timetable.GET("/teachers", operator, h.Timetable.Teachers)
	timetable.GET("/teachers/:name", operator, h.Timetable.TeacherSchedule)
	timetable.GET("/classes", operator, h.Timetable.Classes)
	timetable.GET("/classes/:id", operator, h.Timetable.ClassSchedule)
	timetable.GET("/availability", operator, h.Timetable.Availability)
	timetable.GET("/week", operator, h.Timetable.Week)
	timetable.GET("/export/:kind/:name", operator, h.Timetable.Export)

	notices := secured.Group("/notices")
	notices.POST("", operator, middleware.Audit(logger, "notice.generate"), h.Notice.Generate)
	notices.POST("/preview", operator, h.Notice.Preview)
	notices.POST("/batch", operator, middleware.Audit(logger, "notice.batch"), h.Notice.Batch)
	notices.GET("/jobs/:id", operator, h.Notice.JobStatus)
	notices.GET("/template/tags", operator, h.Notice.TemplateTags)
	notices.GET("/history", operator, h.Notice.History)
	notices.GET("/history/:id", operator, h.Notice.HistoryEntry)
}

func normalizePrefix(prefix string) string {
	prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "/" {
		return ""
	}
	return prefix
}
