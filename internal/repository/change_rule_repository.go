package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

const changeRuleColumns = `id, rule_name, rule_type, field_name, restriction_data, enforcement, description, is_active,
       created_by, created_at, updated_at`

// ChangeRuleRepository manages change restriction rules.
type ChangeRuleRepository struct {
	db sqlx.ExtContext
}

// NewChangeRuleRepository constructs the repository.
func NewChangeRuleRepository(db sqlx.ExtContext) *ChangeRuleRepository {
	return &ChangeRuleRepository{db: db}
}

// ListActiveForField returns active rules that target the field or every field, ordered by id.
func (r *ChangeRuleRepository) ListActiveForField(ctx context.Context, field string) ([]models.ChangeRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM change_rules
	WHERE is_active = TRUE AND (field_name IS NULL OR field_name = $1)
	ORDER BY id ASC`, changeRuleColumns)
	rules := make([]models.ChangeRule, 0)
	if err := sqlx.SelectContext(ctx, r.db, &rules, query, field); err != nil {
		return nil, fmt.Errorf("list active change rules: %w", err)
	}
	return rules, nil
}

// List returns rules matching the filter.
func (r *ChangeRuleRepository) List(ctx context.Context, filter models.ChangeRuleFilter) ([]models.ChangeRule, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM change_rules", changeRuleColumns))
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.RuleType != "" {
		args = append(args, filter.RuleType)
		conditions = append(conditions, fmt.Sprintf("rule_type = $%d", len(args)))
	}
	if filter.FieldName != "" {
		args = append(args, filter.FieldName)
		conditions = append(conditions, fmt.Sprintf("field_name = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY id ASC")

	rules := make([]models.ChangeRule, 0)
	if err := sqlx.SelectContext(ctx, r.db, &rules, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list change rules: %w", err)
	}
	return rules, nil
}

// GetByID fetches a rule.
func (r *ChangeRuleRepository) GetByID(ctx context.Context, id int64) (*models.ChangeRule, error) {
	query := fmt.Sprintf("SELECT %s FROM change_rules WHERE id = $1", changeRuleColumns)
	var rule models.ChangeRule
	if err := sqlx.GetContext(ctx, r.db, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create inserts a rule and fills its generated columns.
func (r *ChangeRuleRepository) Create(ctx context.Context, rule *models.ChangeRule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = rule.CreatedAt
	if rule.Enforcement == "" {
		rule.Enforcement = models.EnforcementHard
	}
	const query = `INSERT INTO change_rules
	(rule_name, rule_type, field_name, restriction_data, enforcement, description, is_active, created_by, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		rule.RuleName,
		rule.RuleType,
		rule.FieldName,
		rule.RestrictionData,
		rule.Enforcement,
		rule.Description,
		rule.IsActive,
		rule.CreatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("create change rule: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a rule.
func (r *ChangeRuleRepository) Update(ctx context.Context, rule *models.ChangeRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE change_rules SET rule_name = :rule_name, field_name = :field_name,
	restriction_data = :restriction_data, enforcement = :enforcement, description = :description, updated_at = :updated_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, rule)
	if err != nil {
		return fmt.Errorf("update change rule: %w", err)
	}
	return expectAffected(result, "update change rule")
}

// SetActive toggles a rule without deleting it.
func (r *ChangeRuleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `UPDATE change_rules SET is_active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set change rule active: %w", err)
	}
	return expectAffected(result, "set change rule active")
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
