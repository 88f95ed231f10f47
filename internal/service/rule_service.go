package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

// ChangeRuleRepository persists change rules.
type ChangeRuleRepository interface {
	RuleSource
	List(ctx context.Context, filter models.ChangeRuleFilter) ([]models.ChangeRule, error)
	GetByID(ctx context.Context, id int64) (*models.ChangeRule, error)
	Create(ctx context.Context, rule *models.ChangeRule) error
	Update(ctx context.Context, rule *models.ChangeRule) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// RuleService manages change rules and offers dry-run evaluation.
type RuleService struct {
	repo      ChangeRuleRepository
	history   AuditWindowCounter
	engine    *RuleEngine
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRuleService constructs the service.
func NewRuleService(repo ChangeRuleRepository, history AuditWindowCounter, engine *RuleEngine, validate *validator.Validate, logger *zap.Logger) *RuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleService{repo: repo, history: history, engine: engine, validator: validate, logger: logger, now: time.Now}
}

// List returns rules matching the query.
func (s *RuleService) List(ctx context.Context, q dto.RuleQuery) ([]models.ChangeRule, error) {
	rules, err := s.repo.List(ctx, models.ChangeRuleFilter{RuleType: q.RuleType, FieldName: q.FieldName, Active: q.Active})
	if err != nil {
		return nil, appErrors.StorageUnavailable(err, "failed to list change rules")
	}
	return rules, nil
}

// Get returns a rule by id.
func (s *RuleService) Get(ctx context.Context, id int64) (*models.ChangeRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change rule not found")
		}
		return nil, appErrors.StorageUnavailable(err, "failed to load change rule")
	}
	return rule, nil
}

// Create validates and stores a new rule.
func (s *RuleService) Create(ctx context.Context, req dto.CreateChangeRuleRequest, actor models.Actor) (*models.ChangeRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change rule payload")
	}
	data := models.JSONMap(req.RestrictionData)
	if err := ValidateRestriction(req.RuleType, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	rule := &models.ChangeRule{
		RuleName:        strings.TrimSpace(req.RuleName),
		RuleType:        req.RuleType,
		FieldName:       normaliseRuleField(req.FieldName),
		RestrictionData: data,
		Enforcement:     req.Enforcement,
		Description:     req.Description,
		IsActive:        active,
		CreatedBy:       actor.Key(),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "rule name already exists")
		}
		return nil, appErrors.StorageUnavailable(err, "failed to create change rule")
	}
	s.logger.Info("change rule created",
		zap.Int64("rule_id", rule.ID),
		zap.String("rule_type", string(rule.RuleType)),
		zap.String("actor", actor.Key()),
	)
	return rule, nil
}

// Update replaces the mutable parts of a rule. The rule type is immutable.
func (s *RuleService) Update(ctx context.Context, id int64, req dto.UpdateChangeRuleRequest, actor models.Actor) (*models.ChangeRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change rule payload")
	}
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data := models.JSONMap(req.RestrictionData)
	if err := ValidateRestriction(rule.RuleType, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	rule.RuleName = strings.TrimSpace(req.RuleName)
	rule.FieldName = normaliseRuleField(req.FieldName)
	rule.RestrictionData = data
	if req.Enforcement != "" {
		rule.Enforcement = req.Enforcement
	}
	rule.Description = req.Description
	if err := s.repo.Update(ctx, rule); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change rule not found")
		case isUniqueViolation(err):
			return nil, appErrors.Clone(appErrors.ErrConflict, "rule name already exists")
		}
		return nil, appErrors.StorageUnavailable(err, "failed to update change rule")
	}
	s.logger.Info("change rule updated", zap.Int64("rule_id", rule.ID), zap.String("actor", actor.Key()))
	return rule, nil
}

// SetActive enables or disables a rule. Rules are never deleted.
func (s *RuleService) SetActive(ctx context.Context, id int64, req dto.SetRuleActiveRequest, actor models.Actor) (*models.ChangeRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "isActive is required")
	}
	if err := s.repo.SetActive(ctx, id, *req.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change rule not found")
		}
		return nil, appErrors.StorageUnavailable(err, "failed to toggle change rule")
	}
	s.logger.Info("change rule toggled", zap.Int64("rule_id", id), zap.Bool("active", *req.IsActive), zap.String("actor", actor.Key()))
	return s.Get(ctx, id)
}

// DryRun evaluates a hypothetical change without recording it.
func (s *RuleService) DryRun(ctx context.Context, req dto.EvaluateChangeRequest, actor models.Actor) (*dto.RuleDecision, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}
	if !models.IsTrackedField(req.FieldName) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field is not tracked")
	}
	ts := s.now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	decision, err := s.engine.Evaluate(ctx, s.repo, s.history, ChangeRequest{
		EntityID:     req.EntityID,
		FieldName:    req.FieldName,
		OldValue:     req.OldValue,
		NewValue:     req.NewValue,
		Actor:        actor,
		Timestamp:    ts,
		EntityStatus: req.EntityStatus,
	})
	if err != nil {
		return nil, appErrors.StorageUnavailable(err, "failed to evaluate change rules")
	}
	return decision, nil
}

func normaliseRuleField(field *string) *string {
	if field == nil || strings.TrimSpace(*field) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*field)
	return &trimmed
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
