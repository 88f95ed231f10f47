package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/pkg/config"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

// AuditRangeReader returns a snapshot of audit records ordered by (created_at, id).
type AuditRangeReader interface {
	ListRange(ctx context.Context, from, to time.Time) ([]models.AuditRecord, error)
}

// AlertCreator stores a candidate alert unless an open duplicate exists.
type AlertCreator interface {
	Create(ctx context.Context, alert *models.Alert) (bool, error)
}

// DetectorConfig holds the thresholds of every heuristic.
type DetectorConfig struct {
	Lookback    time.Duration
	DedupBucket time.Duration

	RapidMinChanges int
	RapidWindow     time.Duration
	RapidHighAt     int
	RapidCriticalAt int

	OffHoursMinChanges    int
	OffHoursWindow        time.Duration
	BusinessStartHour     int
	BusinessEndHour       int
	Location              *time.Location
	WeekendsAreOffHours   bool
	OffHoursIncludeSystem bool

	AgentMinBurst     int
	AgentMaxInterval  time.Duration
	AgentFingerprints []string
}

// NewDetectorConfig converts the environment configuration, resolving the business timezone.
func NewDetectorConfig(c config.DetectorConfig) (DetectorConfig, error) {
	tz := c.BusinessTimezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return DetectorConfig{}, fmt.Errorf("load business timezone %q: %w", tz, err)
	}
	fingerprints := make([]string, 0, len(c.AgentFingerprints))
	for _, fp := range c.AgentFingerprints {
		if fp = strings.ToLower(strings.TrimSpace(fp)); fp != "" {
			fingerprints = append(fingerprints, fp)
		}
	}
	return DetectorConfig{
		Lookback:              c.Lookback,
		DedupBucket:           c.DedupBucket,
		RapidMinChanges:       c.RapidMinChanges,
		RapidWindow:           c.RapidWindow,
		RapidHighAt:           c.RapidHighAt,
		RapidCriticalAt:       c.RapidCriticalAt,
		OffHoursMinChanges:    c.OffHoursMinChanges,
		OffHoursWindow:        c.OffHoursWindow,
		BusinessStartHour:     c.BusinessStartHour,
		BusinessEndHour:       c.BusinessEndHour,
		Location:              loc,
		WeekendsAreOffHours:   c.WeekendsAreOffHours,
		OffHoursIncludeSystem: c.OffHoursIncludeSystem,
		AgentMinBurst:         c.AgentMinBurst,
		AgentMaxInterval:      c.AgentMaxInterval,
		AgentFingerprints:     fingerprints,
	}, nil
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.Lookback <= 0 {
		c.Lookback = 24 * time.Hour
	}
	if c.DedupBucket <= 0 {
		c.DedupBucket = time.Hour
	}
	if c.RapidMinChanges <= 0 {
		c.RapidMinChanges = 3
	}
	if c.RapidWindow <= 0 {
		c.RapidWindow = time.Hour
	}
	if c.RapidHighAt <= 0 {
		c.RapidHighAt = 6
	}
	if c.RapidCriticalAt <= 0 {
		c.RapidCriticalAt = 10
	}
	if c.OffHoursMinChanges <= 0 {
		c.OffHoursMinChanges = 10
	}
	if c.OffHoursWindow <= 0 {
		c.OffHoursWindow = 15 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.AgentMinBurst <= 0 {
		c.AgentMinBurst = 3
	}
	if c.AgentMaxInterval <= 0 {
		c.AgentMaxInterval = time.Second
	}
	return c
}

// Detector scans the audit log for suspicious patterns and raises alerts.
// It keeps no timer of its own: it runs on demand or from cmd/audit-scan.
type Detector struct {
	records AuditRangeReader
	alerts  AlertCreator
	cfg     DetectorConfig
	logger  *zap.Logger
	metrics *MetricsService
	now     func() time.Time
}

// DetectorOption customises the detector.
type DetectorOption func(*Detector)

// WithDetectorClock overrides the clock used by Detect.
func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDetectorMetrics attaches metrics.
func WithDetectorMetrics(metrics *MetricsService) DetectorOption {
	return func(d *Detector) {
		d.metrics = metrics
	}
}

// NewDetector constructs the detector.
func NewDetector(records AuditRangeReader, alerts AlertCreator, cfg DetectorConfig, logger *zap.Logger, opts ...DetectorOption) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		records: records,
		alerts:  alerts,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect scans the configured lookback window ending now.
func (d *Detector) Detect(ctx context.Context) (*dto.ScanResult, error) {
	to := d.now().UTC()
	return d.Scan(ctx, to.Add(-d.cfg.Lookback), to)
}

// Scan evaluates every heuristic over records in [from, to) and stores the resulting alerts.
// Candidates already covered by an open alert are counted as duplicates. When ctx is cancelled
// the remaining candidates are skipped and the partial result is returned with the context error.
func (d *Detector) Scan(ctx context.Context, from, to time.Time) (*dto.ScanResult, error) {
	if !from.Before(to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scan range is empty")
	}
	started := time.Now()
	defer func() { d.metrics.ObserveDetectorRun(time.Since(started)) }()

	records, err := d.records.ListRange(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, appErrors.StorageUnavailable(err, "failed to read audit log")
	}

	candidates := d.Candidates(records)
	result := &dto.ScanResult{
		From:           from.UTC(),
		To:             to.UTC(),
		RecordsScanned: len(records),
		Candidates:     len(candidates),
		Created:        make([]models.Alert, 0),
	}
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("detector scan cancelled",
				zap.Int("processed", i),
				zap.Int("candidates", len(candidates)),
				zap.Error(err),
			)
			return result, err
		}
		alert := candidates[i]
		created, err := d.alerts.Create(ctx, &alert)
		if err != nil {
			result.Failed++
			d.logger.Error("failed to store alert",
				zap.String("alert_type", string(alert.AlertType)),
				zap.String("dedup_key", alert.DedupKey),
				zap.Error(err),
			)
			continue
		}
		if created {
			result.Created = append(result.Created, alert)
		} else {
			result.Duplicates++
		}
	}

	d.logger.Info("detector scan finished",
		zap.Time("from", result.From),
		zap.Time("to", result.To),
		zap.Int("records", result.RecordsScanned),
		zap.Int("candidates", result.Candidates),
		zap.Int("created", len(result.Created)),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Candidates runs every heuristic over the snapshot. The output depends only on the records
// and the configuration, so repeated runs yield identical candidates and dedup keys.
func (d *Detector) Candidates(records []models.AuditRecord) []models.Alert {
	sorted := sortRecords(records)
	candidates := make([]models.Alert, 0)
	candidates = append(candidates, d.rapidChanges(sorted)...)
	candidates = append(candidates, d.offHoursBulkEdits(sorted)...)
	candidates = append(candidates, d.automatedAgents(sorted)...)
	return candidates
}
