package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/handler"
	"github.com/noah-isme/issue-audit-api/internal/middleware"
	"github.com/noah-isme/issue-audit-api/internal/service"
	"github.com/noah-isme/issue-audit-api/pkg/config"
	"github.com/noah-isme/issue-audit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/issue-audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/issue-audit-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by the API.
type Handlers struct {
	Issues      *handler.IssueChangeHandler
	Audit       *handler.AuditHandler
	Rules       *handler.RuleHandler
	Alerts      *handler.AlertHandler
	Consistency *handler.ConsistencyHandler
	Dashboard   *handler.DashboardHandler
	Metrics     *handler.MetricsHandler
}

// Dependencies carries the cross-cutting services the middleware chain needs.
type Dependencies struct {
	Logger  *zap.Logger
	Metrics *service.MetricsService
	Tokens  middleware.TokenValidator
}

// New builds the gin engine with the full middleware chain and route table.
func New(cfg *config.Config, deps Dependencies, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.Tokens))
	admin := middleware.RequireAdmin()

	api.PATCH("/issues/:id/fields", h.Issues.ChangeField)

	audit := api.Group("/audit-logs", admin)
	audit.GET("", h.Audit.List)
	audit.GET("/stats", h.Audit.Stats)
	audit.GET("/export", h.Audit.Export)
	audit.GET("/:id", h.Audit.Get)

	rules := api.Group("/rules")
	rules.POST("/evaluate", h.Rules.Evaluate)
	rules.GET("", admin, h.Rules.List)
	rules.GET("/:id", admin, h.Rules.Get)
	rules.POST("", admin, h.Rules.Create)
	rules.PUT("/:id", admin, h.Rules.Update)
	rules.PATCH("/:id/active", admin, h.Rules.SetActive)

	alerts := api.Group("/alerts", admin)
	alerts.GET("", h.Alerts.List)
	alerts.POST("/scan", h.Alerts.Scan)
	alerts.GET("/stream", h.Alerts.Stream)
	alerts.GET("/:id", h.Alerts.Get)
	alerts.POST("/:id/resolve", h.Alerts.Resolve)

	consistency := api.Group("/consistency")
	consistency.POST("/validate", h.Consistency.Validate)
	consistency.POST("/validate-batch", h.Consistency.ValidateBatch)
	consistency.GET("/reports", admin, h.Consistency.Reports)

	api.GET("/dashboard/refresh", admin, h.Dashboard.Refresh)

	return r
}
