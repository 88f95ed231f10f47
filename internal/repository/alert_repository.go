package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

const alertColumns = `id, alert_type, severity, description, related_entity_ids, related_actor_id, audit_ids,
       detection_data, dedup_key, status, resolved_by, resolution_notes, resolved_at, created_at`

// AlertRepository persists detector alerts.
type AlertRepository struct {
	db sqlx.ExtContext
}

// NewAlertRepository constructs the repository.
func NewAlertRepository(db sqlx.ExtContext) *AlertRepository {
	return &AlertRepository{db: db}
}

// InsertIfAbsent stores the alert unless an open alert with the same dedup key exists, or an
// open alert of the same type already covers one of its audit records. created is false when
// the insert was suppressed.
func (r *AlertRepository) InsertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert.Status == "" {
		alert.Status = models.AlertStatusOpen
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.DetectionData == nil {
		alert.DetectionData = models.JSONMap{}
	}
	if alert.AuditIDs == nil {
		alert.AuditIDs = pq.Int64Array{}
	}
	const query = `INSERT INTO alerts
	(alert_type, severity, description, related_entity_ids, related_actor_id, audit_ids, detection_data, dedup_key, status, created_at)
	SELECT $1::text, $2::text, $3::text, $4::bigint[], $5::text, $6::bigint[], $7::jsonb, $8::text, $9::text, $10::timestamptz
	WHERE NOT EXISTS (
		SELECT 1 FROM alerts
		WHERE status = 'open' AND alert_type = $1::text AND audit_ids && $6::bigint[]
	)
	ON CONFLICT (dedup_key) WHERE status = 'open' DO NOTHING
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		alert.AlertType,
		alert.Severity,
		alert.Description,
		alert.RelatedEntityIDs,
		alert.RelatedActorID,
		alert.AuditIDs,
		alert.DetectionData,
		alert.DedupKey,
		alert.Status,
		alert.CreatedAt,
	).Scan(&alert.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return true, nil
}

// GetByID fetches an alert.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts WHERE id = $1", alertColumns)
	var alert models.Alert
	if err := sqlx.GetContext(ctx, r.db, &alert, query, id); err != nil {
		return nil, err
	}
	return &alert, nil
}

// List returns alerts newest first with the total match count.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.AlertType != "" {
		args = append(args, filter.AlertType)
		conditions = append(conditions, fmt.Sprintf("alert_type = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, "SELECT COUNT(*) FROM alerts"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM alerts%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d",
		alertColumns, where, size, (page-1)*size)
	alerts := make([]models.Alert, 0)
	if err := sqlx.SelectContext(ctx, r.db, &alerts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, total, nil
}

// Resolve closes an open alert. sql.ErrNoRows means the alert is missing or already resolved.
func (r *AlertRepository) Resolve(ctx context.Context, id int64, resolvedBy, notes string, at time.Time) (*models.Alert, error) {
	query := fmt.Sprintf(`UPDATE alerts SET status = 'resolved', resolved_by = $2, resolution_notes = $3, resolved_at = $4
	WHERE id = $1 AND status = 'open'
	RETURNING %s`, alertColumns)
	var alert models.Alert
	if err := sqlx.GetContext(ctx, r.db, &alert, query, id, resolvedBy, notes, at); err != nil {
		return nil, err
	}
	return &alert, nil
}

// CountOpenBySeverity tallies open alerts per severity.
func (r *AlertRepository) CountOpenBySeverity(ctx context.Context) ([]models.SeverityCount, error) {
	const query = `SELECT severity, COUNT(*) AS count FROM alerts WHERE status = 'open' GROUP BY severity
	ORDER BY CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC`
	counts := make([]models.SeverityCount, 0)
	if err := sqlx.SelectContext(ctx, r.db, &counts, query); err != nil {
		return nil, fmt.Errorf("count open alerts: %w", err)
	}
	return counts, nil
}
