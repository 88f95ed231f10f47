package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

const issueColumns = "id, title, status, end_date, betting_end_date, updated_at"

// IssueRepository is the narrow gateway onto the externally owned issues table.
type IssueRepository struct {
	db sqlx.ExtContext
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db sqlx.ExtContext) *IssueRepository {
	return &IssueRepository{db: db}
}

// GetByID reads an issue without locking.
func (r *IssueRepository) GetByID(ctx context.Context, id int64) (*models.Issue, error) {
	query := fmt.Sprintf("SELECT %s FROM issues WHERE id = $1", issueColumns)
	var issue models.Issue
	if err := sqlx.GetContext(ctx, r.db, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetForUpdate reads an issue and locks its row until the surrounding transaction ends.
func (r *IssueRepository) GetForUpdate(ctx context.Context, id int64) (*models.Issue, error) {
	query := fmt.Sprintf("SELECT %s FROM issues WHERE id = $1 FOR UPDATE", issueColumns)
	var issue models.Issue
	if err := sqlx.GetContext(ctx, r.db, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateField writes one tracked field. Timestamp fields expect RFC3339 text or nil.
func (r *IssueRepository) UpdateField(ctx context.Context, id int64, field string, value *string, at time.Time) error {
	var arg interface{}
	switch field {
	case models.FieldEndDate, models.FieldBettingEndDate:
		if value != nil {
			parsed, err := time.Parse(time.RFC3339Nano, *value)
			if err != nil {
				return fmt.Errorf("parse %s: %w", field, err)
			}
			arg = parsed.UTC()
		}
	case models.FieldStatus:
		if value == nil {
			return fmt.Errorf("status cannot be null")
		}
		arg = *value
	default:
		return fmt.Errorf("field %q is not tracked", field)
	}
	// field is whitelisted above
	query := fmt.Sprintf("UPDATE issues SET %s = $2, updated_at = $3 WHERE id = $1", field)
	result, err := r.db.ExecContext(ctx, query, id, arg, at)
	if err != nil {
		return fmt.Errorf("update issue %s: %w", field, err)
	}
	return expectAffected(result, "update issue")
}
