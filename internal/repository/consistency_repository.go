package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

const consistencyColumns = `id, entity_id, field_name, observed_value, authoritative_value, difference_ms, tolerance_ms,
       reported_by, created_at`

// ConsistencyRepository stores drift reports.
type ConsistencyRepository struct {
	db sqlx.ExtContext
}

// NewConsistencyRepository constructs the repository.
func NewConsistencyRepository(db sqlx.ExtContext) *ConsistencyRepository {
	return &ConsistencyRepository{db: db}
}

// Create inserts a drift report.
func (r *ConsistencyRepository) Create(ctx context.Context, report *models.ConsistencyReport) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO consistency_reports
	(entity_id, field_name, observed_value, authoritative_value, difference_ms, tolerance_ms, reported_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		report.EntityID,
		report.FieldName,
		report.ObservedValue,
		report.AuthoritativeValue,
		report.DifferenceMs,
		report.ToleranceMs,
		report.ReportedBy,
		report.CreatedAt,
	).Scan(&report.ID)
	if err != nil {
		return fmt.Errorf("create consistency report: %w", err)
	}
	return nil
}

// List returns reports newest first, optionally for one entity.
func (r *ConsistencyRepository) List(ctx context.Context, entityID *int64, page, pageSize int) ([]models.ConsistencyReport, int, error) {
	where := ""
	args := make([]interface{}, 0, 1)
	if entityID != nil {
		args = append(args, *entityID)
		where = " WHERE entity_id = $1"
	}
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, "SELECT COUNT(*) FROM consistency_reports"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count consistency reports: %w", err)
	}
	page, size := normalisePage(page, pageSize)
	query := fmt.Sprintf("SELECT %s FROM consistency_reports%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d",
		consistencyColumns, where, size, (page-1)*size)
	reports := make([]models.ConsistencyReport, 0)
	if err := sqlx.SelectContext(ctx, r.db, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list consistency reports: %w", err)
	}
	return reports, total, nil
}
