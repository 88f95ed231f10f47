package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

// AlertRepository persists alerts.
type AlertRepository interface {
	InsertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error)
	Resolve(ctx context.Context, id int64, resolvedBy, notes string, at time.Time) (*models.Alert, error)
	CountOpenBySeverity(ctx context.Context) ([]models.SeverityCount, error)
}

// AlertPublisher pushes alert lifecycle events to subscribers.
type AlertPublisher interface {
	Publish(event dto.AlertEvent)
}

// AlertService is the only mutator of alert status and resolution fields.
type AlertService struct {
	repo      AlertRepository
	publisher AlertPublisher
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	now       func() time.Time
}

// AlertServiceOption customises the service.
type AlertServiceOption func(*AlertService)

// WithAlertPublisher attaches push notifications.
func WithAlertPublisher(publisher AlertPublisher) AlertServiceOption {
	return func(s *AlertService) {
		s.publisher = publisher
	}
}

// WithAlertClock overrides the resolution clock.
func WithAlertClock(now func() time.Time) AlertServiceOption {
	return func(s *AlertService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAlertService constructs the service.
func NewAlertService(repo AlertRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, opts ...AlertServiceOption) *AlertService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AlertService{repo: repo, validator: validate, logger: logger, metrics: metrics, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create stores a detector candidate. created is false when an open alert with the same
// dedup key already exists.
func (s *AlertService) Create(ctx context.Context, alert *models.Alert) (bool, error) {
	if !alert.Severity.Valid() {
		return false, appErrors.Clone(appErrors.ErrValidation, "unknown alert severity")
	}
	if strings.TrimSpace(alert.DedupKey) == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "alert dedup key is required")
	}
	alert.Status = models.AlertStatusOpen
	alert.ResolvedBy, alert.ResolutionNotes, alert.ResolvedAt = nil, nil, nil
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}

	created, err := s.repo.InsertIfAbsent(ctx, alert)
	if err != nil {
		return false, appErrors.StorageUnavailable(err, "failed to store alert")
	}
	s.metrics.RecordAlert(alert.AlertType, alert.Severity, created)
	if !created {
		return false, nil
	}
	s.logger.Warn("alert raised",
		zap.Int64("alert_id", alert.ID),
		zap.String("alert_type", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)),
		zap.Int64s("entity_ids", alert.RelatedEntityIDs),
	)
	s.publish(dto.AlertEventCreated, *alert)
	return true, nil
}

// List returns alerts newest first.
func (s *AlertService) List(ctx context.Context, q dto.AlertQuery) ([]models.Alert, *models.Pagination, error) {
	switch q.Status {
	case "", models.AlertStatusOpen, models.AlertStatusResolved:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "status must be open or resolved")
	}
	if q.Severity != "" && !q.Severity.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown severity")
	}
	page, size := models.NormalizePage(q.Page, q.PageSize, 20, 100)
	alerts, total, err := s.repo.List(ctx, models.AlertFilter{
		Status:    q.Status,
		Severity:  q.Severity,
		AlertType: q.AlertType,
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		return nil, nil, appErrors.StorageUnavailable(err, "failed to list alerts")
	}
	return alerts, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one alert.
func (s *AlertService) Get(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return nil, appErrors.StorageUnavailable(err, "failed to load alert")
	}
	return alert, nil
}

// Resolve closes an open alert. Resolving twice fails with INVALID_STATE so the first
// resolver stays the accountable one.
func (s *AlertService) Resolve(ctx context.Context, id int64, req dto.ResolveAlertRequest, actor models.Actor) (*models.Alert, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "resolution notes are required")
	}
	notes := strings.TrimSpace(req.ResolutionNotes)
	if notes == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resolution notes are required")
	}

	alert, err := s.repo.Resolve(ctx, id, actor.Key(), notes, s.now().UTC())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.StorageUnavailable(err, "failed to resolve alert")
		}
		existing, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "alert already resolved by "+deref(existing.ResolvedBy))
	}

	s.metrics.RecordAlertResolved()
	s.logger.Info("alert resolved", zap.Int64("alert_id", alert.ID), zap.String("actor", actor.Key()))
	s.publish(dto.AlertEventResolved, *alert)
	return alert, nil
}

// OpenBySeverity tallies open alerts for the dashboard.
func (s *AlertService) OpenBySeverity(ctx context.Context) ([]models.SeverityCount, error) {
	counts, err := s.repo.CountOpenBySeverity(ctx)
	if err != nil {
		return nil, appErrors.StorageUnavailable(err, "failed to count open alerts")
	}
	return counts, nil
}

func (s *AlertService) publish(eventType string, alert models.Alert) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(dto.AlertEvent{Type: eventType, Alert: alert, EmittedAt: s.now().UTC()})
}
