package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
	"github.com/noah-isme/issue-audit-api/pkg/export"
)

const (
	auditStatsCachePrefix  = "audit:stats:"
	auditStatsCachePattern = auditStatsCachePrefix + "*"
	maxStatsRange          = 366 * 24 * time.Hour
	topActorLimit          = 10
	exportPageSize         = 100
)

var statsPeriods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// AuditReader is the read side of the audit log store.
type AuditReader interface {
	GetByID(ctx context.Context, id int64) (*models.AuditRecord, error)
	Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error)
	ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error)
	CountBy(ctx context.Context, column string, from, to time.Time) (map[string]int, error)
	DailyActivity(ctx context.Context, from, to time.Time) ([]models.DailyActivity, error)
	TopActors(ctx context.Context, from, to time.Time, limit int) ([]models.ActorActivity, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// AuditServiceConfig tunes the audit read endpoints.
type AuditServiceConfig struct {
	StatsCacheTTL time.Duration
	ExportMaxRows int
}

// AuditService serves audit log queries, summaries and exports.
type AuditService struct {
	repo   AuditReader
	cache  *CacheService
	csv    csvRenderer
	pdf    pdfRenderer
	cfg    AuditServiceConfig
	logger *zap.Logger
	now    func() time.Time
}

// AuditServiceOption customises the service.
type AuditServiceOption func(*AuditService)

// WithAuditClock overrides the service clock.
func WithAuditClock(now func() time.Time) AuditServiceOption {
	return func(s *AuditService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditRenderers overrides the export renderers.
func WithAuditRenderers(csv csvRenderer, pdf pdfRenderer) AuditServiceOption {
	return func(s *AuditService) {
		if csv != nil {
			s.csv = csv
		}
		if pdf != nil {
			s.pdf = pdf
		}
	}
}

// NewAuditService constructs the service.
func NewAuditService(repo AuditReader, cache *CacheService, cfg AuditServiceConfig, logger *zap.Logger, opts ...AuditServiceOption) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExportMaxRows <= 0 {
		cfg.ExportMaxRows = 5000
	}
	svc := &AuditService{
		repo:   repo,
		cache:  cache,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Query lists audit records newest first.
func (s *AuditService) Query(ctx context.Context, q dto.AuditQuery) ([]models.AuditRecord, *models.Pagination, error) {
	if err := validateAuditQuery(q); err != nil {
		return nil, nil, err
	}
	filter := q.Filter()
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize, 20, 100)
	records, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.StorageUnavailable(err, "failed to query audit log")
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one audit record.
func (s *AuditService) Get(ctx context.Context, id int64) (*models.AuditRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit record not found")
		}
		return nil, appErrors.StorageUnavailable(err, "failed to load audit record")
	}
	return record, nil
}

// Recent returns the latest audit records.
func (s *AuditService) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	records, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.StorageUnavailable(err, "failed to load recent audit records")
	}
	return records, nil
}

// SummaryStats aggregates activity for a named period (24h, 7d, 30d, 90d) or an explicit range.
// cached reports whether the summary came from the cache.
func (s *AuditService) SummaryStats(ctx context.Context, period string, from, to *time.Time) (summary *models.AuditSummary, cached bool, err error) {
	start, end, label, err := s.resolvePeriod(period, from, to)
	if err != nil {
		return nil, false, err
	}
	key := auditStatsCachePrefix + label
	if label == "custom" {
		key = fmt.Sprintf("%scustom:%d:%d", auditStatsCachePrefix, start.Unix(), end.Unix())
	}

	var hit models.AuditSummary
	if s.cache.Get(ctx, key, &hit) {
		return &hit, true, nil
	}

	summary = &models.AuditSummary{Period: label, From: start, To: end}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.CountBy(gctx, "action", start, end)
		summary.PerAction = counts
		return err
	})
	g.Go(func() error {
		counts, err := s.repo.CountBy(gctx, "field_name", start, end)
		summary.PerField = counts
		return err
	})
	g.Go(func() error {
		counts, err := s.repo.CountBy(gctx, "validation_status", start, end)
		summary.PerStatus = counts
		return err
	})
	g.Go(func() error {
		days, err := s.repo.DailyActivity(gctx, start, end)
		summary.DailyActivity = days
		return err
	})
	g.Go(func() error {
		actors, err := s.repo.TopActors(gctx, start, end, topActorLimit)
		summary.TopActors = actors
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, appErrors.StorageUnavailable(err, "failed to aggregate audit log")
	}
	for _, count := range summary.PerStatus {
		summary.Total += count
	}

	s.cache.Set(ctx, key, summary, s.cfg.StatsCacheTTL)
	return summary, false, nil
}

func (s *AuditService) resolvePeriod(period string, from, to *time.Time) (time.Time, time.Time, string, error) {
	if from != nil || to != nil {
		if from == nil || to == nil {
			return time.Time{}, time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "from and to must be provided together")
		}
		start, end := from.UTC(), to.UTC()
		if !start.Before(end) {
			return time.Time{}, time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "from must be before to")
		}
		if end.Sub(start) > maxStatsRange {
			return time.Time{}, time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "range must not exceed 366 days")
		}
		return start, end, "custom", nil
	}
	if period == "" {
		period = "7d"
	}
	span, ok := statsPeriods[period]
	if !ok {
		return time.Time{}, time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "period must be one of 24h, 7d, 30d, 90d")
	}
	end := s.now().UTC()
	return end.Add(-span), end, period, nil
}

// Export renders the records matching the query, newest first, capped at the configured row limit.
func (s *AuditService) Export(ctx context.Context, q dto.AuditQuery, format dto.ExportFormat) (*dto.ExportResult, error) {
	if err := validateAuditQuery(q); err != nil {
		return nil, err
	}
	if format == "" {
		format = dto.ExportFormatCSV
	}
	if format != dto.ExportFormatCSV && format != dto.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	filter := q.Filter()
	filter.PageSize = exportPageSize
	records := make([]models.AuditRecord, 0, exportPageSize)
	for page := 1; len(records) < s.cfg.ExportMaxRows; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		filter.Page = page
		batch, _, err := s.repo.Query(ctx, filter)
		if err != nil {
			return nil, appErrors.StorageUnavailable(err, "failed to export audit log")
		}
		records = append(records, batch...)
		if len(batch) < exportPageSize {
			break
		}
	}
	if len(records) > s.cfg.ExportMaxRows {
		records = records[:s.cfg.ExportMaxRows]
	}

	dataset := auditDataset(records)
	stamp := s.now().UTC().Format("20060102-150405")
	var (
		body []byte
		err  error
		res  = &dto.ExportResult{Rows: len(records)}
	)
	switch format {
	case dto.ExportFormatPDF:
		body, err = s.pdf.Render(dataset, "Issue change audit log")
		res.ContentType = "application/pdf"
		res.Filename = "audit-log-" + stamp + ".pdf"
	default:
		body, err = s.csv.Render(dataset)
		res.ContentType = "text/csv"
		res.Filename = "audit-log-" + stamp + ".csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	res.Body = body
	s.logger.Info("audit log exported", zap.String("format", string(format)), zap.Int("rows", len(records)))
	return res, nil
}

var auditExportHeaders = []string{"id", "created_at", "entity_id", "field_name", "action", "old_value", "new_value",
	"actor", "change_source", "validation_status", "ip_address"}

func auditDataset(records []models.AuditRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"id":                strconv.FormatInt(r.ID, 10),
			"created_at":        r.CreatedAt.UTC().Format(time.RFC3339),
			"entity_id":         strconv.FormatInt(r.EntityID, 10),
			"field_name":        r.FieldName,
			"action":            string(r.Action),
			"old_value":         deref(r.OldValue),
			"new_value":         deref(r.NewValue),
			"actor":             r.Actor().Key(),
			"change_source":     r.ChangeSource,
			"validation_status": string(r.ValidationStatus),
			"ip_address":        deref(r.IPAddress),
		})
	}
	return export.Dataset{Headers: auditExportHeaders, Rows: rows}
}

func validateAuditQuery(q dto.AuditQuery) error {
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return appErrors.Clone(appErrors.ErrValidation, "from must be before to")
	}
	if q.ActorKind != "" && !q.ActorKind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown actor kind")
	}
	switch q.ValidationStatus {
	case "", models.ValidationStatusValid, models.ValidationStatusFlagged, models.ValidationStatusRejected:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown validation status")
	}
	switch q.Action {
	case "", models.AuditActionCreate, models.AuditActionUpdate, models.AuditActionDelete:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown action")
	}
	return nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
