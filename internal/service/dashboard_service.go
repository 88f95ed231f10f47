package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
)

type dashboardAlerts interface {
	OpenBySeverity(ctx context.Context) ([]models.SeverityCount, error)
	List(ctx context.Context, q dto.AlertQuery) ([]models.Alert, *models.Pagination, error)
}

type dashboardAudit interface {
	Recent(ctx context.Context, limit int) ([]models.AuditRecord, error)
	SummaryStats(ctx context.Context, period string, from, to *time.Time) (*models.AuditSummary, bool, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	LatestAlerts   int
	RecentActivity int
}

// DashboardService composes the admin dashboard refresh payload.
type DashboardService struct {
	alerts dashboardAlerts
	audit  dashboardAudit
	logger *zap.Logger
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(alerts dashboardAlerts, audit dashboardAudit, cfg DashboardServiceConfig, logger *zap.Logger) *DashboardService {
	if cfg.LatestAlerts <= 0 {
		cfg.LatestAlerts = 10
	}
	if cfg.RecentActivity <= 0 {
		cfg.RecentActivity = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{alerts: alerts, audit: audit, logger: logger, cfg: cfg}
}

// Refresh gathers open alert counts, the latest open alerts, recent audit activity and 24h
// statistics. The stats flag reports whether the statistics came from cache.
func (s *DashboardService) Refresh(ctx context.Context) (*dto.DashboardSnapshot, bool, error) {
	snapshot := &dto.DashboardSnapshot{}
	var cached bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.alerts.OpenBySeverity(gctx)
		snapshot.OpenAlerts = counts
		return err
	})
	g.Go(func() error {
		alerts, _, err := s.alerts.List(gctx, dto.AlertQuery{Status: models.AlertStatusOpen, PageSize: s.cfg.LatestAlerts})
		snapshot.LatestAlerts = alerts
		return err
	})
	g.Go(func() error {
		records, err := s.audit.Recent(gctx, s.cfg.RecentActivity)
		snapshot.RecentActivity = records
		return err
	})
	g.Go(func() error {
		stats, hit, err := s.audit.SummaryStats(gctx, "24h", nil, nil)
		snapshot.Stats = stats
		cached = hit
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("dashboard refresh failed", zap.Error(err))
		return nil, false, err
	}
	if snapshot.OpenAlerts == nil {
		snapshot.OpenAlerts = []models.SeverityCount{}
	}
	if snapshot.LatestAlerts == nil {
		snapshot.LatestAlerts = []models.Alert{}
	}
	if snapshot.RecentActivity == nil {
		snapshot.RecentActivity = []models.AuditRecord{}
	}
	return snapshot, cached, nil
}
