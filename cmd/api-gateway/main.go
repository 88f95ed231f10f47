package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/issue-audit-api/api/swagger"
	"github.com/noah-isme/issue-audit-api/internal/handler"
	"github.com/noah-isme/issue-audit-api/internal/repository"
	"github.com/noah-isme/issue-audit-api/internal/router"
	"github.com/noah-isme/issue-audit-api/internal/service"
	"github.com/noah-isme/issue-audit-api/pkg/cache"
	"github.com/noah-isme/issue-audit-api/pkg/config"
	"github.com/noah-isme/issue-audit-api/pkg/database"
	"github.com/noah-isme/issue-audit-api/pkg/logger"
)

// @title Issue Audit API
// @version 1.0.0
// @description Audited issue field changes, change rules, suspicious activity alerts and consistency checks.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, "up"); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
		if version, dirty, err := database.MigrationVersion(db); err == nil {
			logr.Info("schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache and alert push", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	issueRepo := repository.NewIssueRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	ruleRepo := repository.NewChangeRuleRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	reportRepo := repository.NewConsistencyRepository(db)

	cacheRepo := repository.NewCacheRepository(redisClient, "issue-audit:", logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Audit.StatsCacheTTL, logr, redisClient != nil)

	var (
		notifier  *service.AlertNotifier
		alertOpts []service.AlertServiceOption
	)
	if cfg.Notifications.Enabled && redisClient != nil {
		bus := repository.NewAlertEventRepository(redisClient, cfg.Notifications.Channel)
		notifier = service.NewAlertNotifier(bus, service.AlertNotifierConfig{
			Workers:    cfg.Notifications.Workers,
			MaxRetries: cfg.Notifications.MaxRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
		}, logr, metrics)
		notifier.Start(ctx)
		defer notifier.Stop()
		alertOpts = append(alertOpts, service.WithAlertPublisher(notifier))
	}

	engine := service.NewRuleEngine(logr, metrics)
	gate := service.NewChangeGate(engine, logr, metrics)
	changes := service.NewIssueChangeService(service.NewSQLTxRunner(repository.NewUnitOfWork(db)), gate, validate, logr,
		service.WithIssueChangeCache(cacheSvc))
	auditSvc := service.NewAuditService(auditRepo, cacheSvc, service.AuditServiceConfig{
		StatsCacheTTL: cfg.Audit.StatsCacheTTL,
		ExportMaxRows: cfg.Audit.ExportMaxRows,
	}, logr)
	ruleSvc := service.NewRuleService(ruleRepo, auditRepo, engine, validate, logr)
	alertSvc := service.NewAlertService(alertRepo, validate, logr, metrics, alertOpts...)

	detectorCfg, err := service.NewDetectorConfig(cfg.Detector)
	if err != nil {
		logr.Fatal("invalid detector configuration", zap.Error(err))
	}
	detector := service.NewDetector(auditRepo, alertSvc, detectorCfg, logr, service.WithDetectorMetrics(metrics))

	consistencySvc := service.NewConsistencyService(issueRepo, reportRepo, service.ConsistencyConfig{
		Tolerance:   cfg.Consistency.Tolerance,
		Concurrency: cfg.Consistency.Concurrency,
		MaxBatch:    cfg.Consistency.MaxBatch,
	}, validate, logr, metrics)
	dashboardSvc := service.NewDashboardService(alertSvc, auditSvc, service.DashboardServiceConfig{
		RecentActivity: cfg.Audit.DashboardLimit,
	}, logr)

	readiness := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	alertHandler := handler.NewAlertHandler(alertSvc, detector, nil)
	if notifier != nil {
		alertHandler = handler.NewAlertHandler(alertSvc, detector, notifier)
	}

	r := router.New(cfg, router.Dependencies{Logger: logr, Metrics: metrics, Tokens: tokens}, router.Handlers{
		Issues:      handler.NewIssueChangeHandler(changes),
		Audit:       handler.NewAuditHandler(auditSvc),
		Rules:       handler.NewRuleHandler(ruleSvc),
		Alerts:      alertHandler,
		Consistency: handler.NewConsistencyHandler(consistencySvc),
		Dashboard:   handler.NewDashboardHandler(dashboardSvc),
		Metrics:     handler.NewMetricsHandler(metrics, readiness),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
