package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

// IssueReader reads the authoritative issue row without locking.
type IssueReader interface {
	GetByID(ctx context.Context, id int64) (*models.Issue, error)
}

// ConsistencyReportStore persists drift reports.
type ConsistencyReportStore interface {
	Create(ctx context.Context, report *models.ConsistencyReport) error
	List(ctx context.Context, entityID *int64, page, pageSize int) ([]models.ConsistencyReport, int, error)
}

// ConsistencyConfig controls drift validation.
type ConsistencyConfig struct {
	Tolerance   time.Duration
	Concurrency int
	MaxBatch    int
}

// ConsistencyService compares caller-held values with the store. Authority always flows from
// the store to the caller: the issue row is never written here.
type ConsistencyService struct {
	issues    IssueReader
	reports   ConsistencyReportStore
	cfg       ConsistencyConfig
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewConsistencyService constructs the service.
func NewConsistencyService(issues IssueReader, reports ConsistencyReportStore, cfg ConsistencyConfig, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *ConsistencyService {
	if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsistencyService{issues: issues, reports: reports, cfg: cfg, validator: validate, logger: logger, metrics: metrics}
}

// Validate compares one observed value with the stored value. Timestamps are consistent when
// they differ by no more than the tolerance; other values must match exactly. Drift is
// persisted as a report and answered with the authoritative value to adopt.
func (s *ConsistencyService) Validate(ctx context.Context, req dto.ValidateConsistencyRequest, actor models.Actor) (*dto.ConsistencyResult, error) {
	result, err := s.validate(ctx, req, actor)
	if err != nil {
		s.metrics.RecordConsistencyCheck("error")
		return nil, err
	}
	if result.IsConsistent {
		s.metrics.RecordConsistencyCheck("consistent")
	} else {
		s.metrics.RecordConsistencyCheck("inconsistent")
	}
	return result, nil
}

func (s *ConsistencyService) validate(ctx context.Context, req dto.ValidateConsistencyRequest, actor models.Actor) (*dto.ConsistencyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consistency payload")
	}
	field := req.FieldName
	if field == "" {
		field = models.FieldEndDate
	}

	issue, err := s.issues.GetByID(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("issue %d not found", req.EntityID))
		}
		return nil, appErrors.StorageUnavailable(err, "failed to load issue")
	}
	authoritative, _ := issue.FieldValue(field)

	result := &dto.ConsistencyResult{
		EntityID:           req.EntityID,
		FieldName:          field,
		ObservedValue:      req.ObservedValue,
		AuthoritativeValue: authoritative,
	}
	if models.IsTimestampField(field) {
		consistent, diff, err := compareTimestamps(req.ObservedValue, authoritative, s.cfg.Tolerance)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "observed value must be an RFC3339 timestamp")
		}
		result.IsConsistent = consistent
		result.DifferenceMs = diff
	} else {
		result.IsConsistent = sameValue(req.ObservedValue, authoritative)
	}
	if result.IsConsistent {
		return result, nil
	}

	report := &models.ConsistencyReport{
		EntityID:           req.EntityID,
		FieldName:          field,
		ObservedValue:      req.ObservedValue,
		AuthoritativeValue: authoritative,
		DifferenceMs:       result.DifferenceMs,
		ToleranceMs:        s.cfg.Tolerance.Milliseconds(),
		ReportedBy:         actor.Key(),
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.StorageUnavailable(err, "failed to store consistency report")
	}
	s.logger.Warn("stale value detected",
		zap.Int64("entity_id", req.EntityID),
		zap.String("field_name", field),
		zap.String("actor", actor.Key()),
		zap.Stringp("observed", req.ObservedValue),
		zap.Stringp("authoritative", authoritative),
		zap.Int64("report_id", report.ID),
	)
	result.ReportID = &report.ID
	result.Recovery = &dto.Recovery{Action: dto.RecoveryReplaceObserved, Value: authoritative}
	return result, nil
}

// ValidateMany checks every item independently with bounded concurrency. A failing item is
// counted in ErrorCount and listed in Errors; it never aborts the batch. Items not started
// before ctx is cancelled are reported as errors too.
func (s *ConsistencyService) ValidateMany(ctx context.Context, req dto.ValidateConsistencyBatchRequest, actor models.Actor) (*dto.ConsistencySummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "items are required")
	}
	if len(req.Items) > s.cfg.MaxBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch exceeds %d items", s.cfg.MaxBatch))
	}

	type slot struct {
		result *dto.ConsistencyResult
		err    error
	}
	slots := make([]slot, len(req.Items))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range req.Items {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return nil
			}
			slots[i].result, slots[i].err = s.Validate(ctx, req.Items[i], actor)
			return nil
		})
	}
	_ = g.Wait()

	summary := &dto.ConsistencySummary{
		Total:               len(req.Items),
		InconsistentDetails: make([]dto.ConsistencyResult, 0),
		Errors:              make([]dto.ConsistencyItemError, 0),
	}
	for i, sl := range slots {
		switch {
		case sl.err != nil:
			summary.ErrorCount++
			summary.Errors = append(summary.Errors, dto.ConsistencyItemError{
				Index:    i,
				EntityID: req.Items[i].EntityID,
				Message:  sl.err.Error(),
			})
		case sl.result.IsConsistent:
			summary.ConsistentCount++
		default:
			summary.InconsistentCount++
			summary.InconsistentDetails = append(summary.InconsistentDetails, *sl.result)
		}
	}
	if summary.ErrorCount > 0 {
		s.logger.Warn("consistency batch finished with errors",
			zap.Int("total", summary.Total),
			zap.Int("errors", summary.ErrorCount),
			zap.String("actor", actor.Key()),
		)
	}
	return summary, nil
}

// ListReports pages persisted drift reports.
func (s *ConsistencyService) ListReports(ctx context.Context, q dto.ConsistencyReportQuery) ([]models.ConsistencyReport, *models.Pagination, error) {
	page, size := models.NormalizePage(q.Page, q.PageSize, 20, 100)
	reports, total, err := s.reports.List(ctx, q.EntityID, page, size)
	if err != nil {
		return nil, nil, appErrors.StorageUnavailable(err, "failed to list consistency reports")
	}
	return reports, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// compareTimestamps returns whether two optional timestamps agree within tolerance and,
// when both are present, their absolute difference in milliseconds.
func compareTimestamps(observed, authoritative *string, tolerance time.Duration) (bool, *int64, error) {
	if observed == nil || authoritative == nil {
		return observed == nil && authoritative == nil, nil, nil
	}
	obs, err := time.Parse(time.RFC3339Nano, *observed)
	if err != nil {
		return false, nil, err
	}
	auth, err := time.Parse(time.RFC3339Nano, *authoritative)
	if err != nil {
		return false, nil, fmt.Errorf("stored value %q is not a timestamp: %w", *authoritative, err)
	}
	diff := auth.Sub(obs)
	if diff < 0 {
		diff = -diff
	}
	ms := diff.Milliseconds()
	return diff <= tolerance, &ms, nil
}
