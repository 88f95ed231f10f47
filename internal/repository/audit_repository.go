package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

const auditColumns = `id, entity_id, field_name, old_value, new_value, action, actor_kind, actor_id, actor_display,
       change_source, ip_address, user_agent, validation_status, metadata, created_at`

// AuditRepository persists the append-only audit trail. It exposes no update or delete.
type AuditRepository struct {
	db sqlx.ExtContext
}

// NewAuditRepository constructs the repository over a database or transaction handle.
func NewAuditRepository(db sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a new audit record and returns it with its store-assigned id.
func (r *AuditRepository) Append(ctx context.Context, input models.AuditRecordInput) (*models.AuditRecord, error) {
	action := input.Action
	if action == "" {
		action = models.AuditActionUpdate
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	metadata := input.Metadata
	if metadata == nil {
		metadata = models.JSONMap{}
	}
	record := models.AuditRecord{
		EntityID:         input.EntityID,
		FieldName:        input.FieldName,
		OldValue:         input.OldValue,
		NewValue:         input.NewValue,
		Action:           action,
		ActorKind:        input.Actor.Kind,
		ActorID:          input.Actor.ID,
		ActorDisplay:     input.Actor.DisplayName,
		ChangeSource:     input.ChangeSource,
		IPAddress:        input.IPAddress,
		UserAgent:        input.UserAgent,
		ValidationStatus: input.ValidationStatus,
		Metadata:         metadata,
		CreatedAt:        createdAt,
	}
	const query = `INSERT INTO audit_records
	(entity_id, field_name, old_value, new_value, action, actor_kind, actor_id, actor_display, change_source, ip_address, user_agent, validation_status, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		record.EntityID,
		record.FieldName,
		record.OldValue,
		record.NewValue,
		record.Action,
		record.ActorKind,
		record.ActorID,
		record.ActorDisplay,
		record.ChangeSource,
		record.IPAddress,
		record.UserAgent,
		record.ValidationStatus,
		record.Metadata,
		record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	return &record, nil
}

// GetByID fetches a single audit record.
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*models.AuditRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_records WHERE id = $1", auditColumns)
	var record models.AuditRecord
	if err := sqlx.GetContext(ctx, r.db, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Query lists audit records matching the filter, newest first, and the total match count.
func (r *AuditRepository) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error) {
	where, args := buildAuditWhere(filter)

	countQuery := "SELECT COUNT(*) FROM audit_records" + where
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM audit_records%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d",
		auditColumns, where, size, (page-1)*size)
	records := make([]models.AuditRecord, 0)
	if err := sqlx.SelectContext(ctx, r.db, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("query audit records: %w", err)
	}
	return records, total, nil
}

// CountNonRejected counts accepted or flagged changes of one field within [from, to].
func (r *AuditRepository) CountNonRejected(ctx context.Context, entityID int64, field string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM audit_records
	WHERE entity_id = $1 AND field_name = $2 AND validation_status <> 'rejected'
	AND created_at >= $3 AND created_at <= $4`
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, entityID, field, from, to); err != nil {
		return 0, fmt.Errorf("count audit window: %w", err)
	}
	return count, nil
}

// ListRange returns every record in [from, to) ordered by (created_at, id).
func (r *AuditRepository) ListRange(ctx context.Context, from, to time.Time) ([]models.AuditRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_records WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC, id ASC", auditColumns)
	records := make([]models.AuditRecord, 0)
	if err := sqlx.SelectContext(ctx, r.db, &records, query, from, to); err != nil {
		return nil, fmt.Errorf("list audit range: %w", err)
	}
	return records, nil
}

// ListRecent returns the latest records.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf("SELECT %s FROM audit_records ORDER BY created_at DESC, id DESC LIMIT %d", auditColumns, limit)
	records := make([]models.AuditRecord, 0)
	if err := sqlx.SelectContext(ctx, r.db, &records, query); err != nil {
		return nil, fmt.Errorf("list recent audit records: %w", err)
	}
	return records, nil
}

var auditGroupColumns = map[string]string{
	"action":            "action",
	"field_name":        "field_name",
	"validation_status": "validation_status",
}

// CountBy groups records in [from, to) by one of action, field_name or validation_status.
func (r *AuditRepository) CountBy(ctx context.Context, column string, from, to time.Time) (map[string]int, error) {
	col, ok := auditGroupColumns[column]
	if !ok {
		return nil, fmt.Errorf("unsupported audit grouping %q", column)
	}
	query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM audit_records
	WHERE created_at >= $1 AND created_at < $2 GROUP BY %s`, col, col)
	var rows []models.KeyCount
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("count audit records by %s: %w", column, err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}

// DailyActivity returns per-day record counts (UTC days) in [from, to).
func (r *AuditRepository) DailyActivity(ctx context.Context, from, to time.Time) ([]models.DailyActivity, error) {
	const query = `SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COUNT(*) AS count
	FROM audit_records WHERE created_at >= $1 AND created_at < $2
	GROUP BY day ORDER BY day ASC`
	days := make([]models.DailyActivity, 0)
	if err := sqlx.SelectContext(ctx, r.db, &days, query, from, to); err != nil {
		return nil, fmt.Errorf("audit daily activity: %w", err)
	}
	return days, nil
}

// TopActors ranks actors by record count in [from, to).
func (r *AuditRepository) TopActors(ctx context.Context, from, to time.Time, limit int) ([]models.ActorActivity, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT actor_kind, actor_id, COUNT(*) AS count
	FROM audit_records WHERE created_at >= $1 AND created_at < $2
	GROUP BY actor_kind, actor_id ORDER BY count DESC, actor_kind ASC, actor_id ASC LIMIT %d`, limit)
	actors := make([]models.ActorActivity, 0)
	if err := sqlx.SelectContext(ctx, r.db, &actors, query, from, to); err != nil {
		return nil, fmt.Errorf("audit top actors: %w", err)
	}
	return actors, nil
}

func buildAuditWhere(filter models.AuditFilter) (string, []interface{}) {
	conditions := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)
	add := func(expr string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}
	if filter.EntityID != nil {
		add("entity_id = $%d", *filter.EntityID)
	}
	if filter.FieldName != "" {
		add("field_name = $%d", filter.FieldName)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ActorKind != "" {
		add("actor_kind = $%d", filter.ActorKind)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.ValidationStatus != "" {
		add("validation_status = $%d", filter.ValidationStatus)
	}
	if filter.ChangeSource != "" {
		add("change_source = $%d", filter.ChangeSource)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func normalisePage(page, size int) (int, int) {
	return models.NormalizePage(page, size, 20, 100)
}
