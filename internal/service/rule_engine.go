package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
)

// ChangeRequest is a proposed mutation of one tracked issue field.
type ChangeRequest struct {
	EntityID     int64
	FieldName    string
	OldValue     *string
	NewValue     *string
	Actor        models.Actor
	Timestamp    time.Time
	EntityStatus string
}

// errMalformedRule marks restriction data that cannot be interpreted.
var errMalformedRule = errors.New("malformed restriction data")

// RuleEngine evaluates change requests against the active change rules.
// It holds no state; rules and history are read through the stores passed to Evaluate
// so evaluation joins the caller's transaction.
type RuleEngine struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewRuleEngine constructs the engine.
func NewRuleEngine(logger *zap.Logger, metrics *MetricsService) *RuleEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleEngine{logger: logger, metrics: metrics}
}

// Evaluate runs every active rule for the field. Reject wins over flag, flag wins over valid.
// A storage failure while loading rules or history is returned as an error.
func (e *RuleEngine) Evaluate(ctx context.Context, rules RuleSource, history AuditWindowCounter, change ChangeRequest) (*dto.RuleDecision, error) {
	active, err := rules.ListActiveForField(ctx, change.FieldName)
	if err != nil {
		return nil, fmt.Errorf("load change rules: %w", err)
	}
	return e.EvaluateRules(ctx, active, history, change)
}

// EvaluateRules evaluates an explicit rule set.
func (e *RuleEngine) EvaluateRules(ctx context.Context, rules []models.ChangeRule, history AuditWindowCounter, change ChangeRequest) (*dto.RuleDecision, error) {
	decision := &dto.RuleDecision{
		Allowed:          true,
		ValidationStatus: models.ValidationStatusValid,
		Outcomes:         make([]dto.RuleOutcome, 0, len(rules)),
	}

	for _, rule := range rules {
		if !rule.IsActive || !rule.AppliesTo(change.FieldName) {
			continue
		}
		status, reason, err := e.evaluateRule(ctx, rule, history, change)
		if err != nil {
			return nil, err
		}
		outcome := dto.RuleOutcome{
			RuleID:   rule.ID,
			RuleName: rule.RuleName,
			RuleType: rule.RuleType,
			Status:   status,
			Reason:   reason,
		}
		decision.Outcomes = append(decision.Outcomes, outcome)

		switch status {
		case models.ValidationStatusRejected:
			e.metrics.RecordRuleViolation(rule.RuleType, status)
			if decision.Allowed {
				ruleID := rule.ID
				decision.Allowed = false
				decision.ValidationStatus = models.ValidationStatusRejected
				decision.ViolatedRuleID = &ruleID
				decision.ViolatedRuleName = rule.RuleName
				decision.Reason = reason
			}
		case models.ValidationStatusFlagged:
			e.metrics.RecordRuleViolation(rule.RuleType, status)
			decision.FlaggedRuleIDs = append(decision.FlaggedRuleIDs, rule.ID)
			if decision.Allowed {
				decision.ValidationStatus = models.ValidationStatusFlagged
				if decision.Reason == "" {
					decision.Reason = reason
				}
			}
		}
	}
	return decision, nil
}

func (e *RuleEngine) evaluateRule(ctx context.Context, rule models.ChangeRule, history AuditWindowCounter, change ChangeRequest) (models.ValidationStatus, string, error) {
	var (
		status models.ValidationStatus
		reason string
		err    error
	)
	switch rule.RuleType {
	case models.RuleTypeMaxFrequency:
		status, reason, err = evaluateMaxFrequency(ctx, rule, history, change)
	case models.RuleTypeFieldLockAfterStatus:
		status, reason, err = evaluateFieldLock(rule, change)
	case models.RuleTypeActorAllowlist:
		status, reason, err = evaluateActorAllowlist(rule, change)
	case models.RuleTypeMinLeadTime:
		status, reason, err = evaluateMinLeadTime(rule, change)
	default:
		err = fmt.Errorf("%w: unknown rule type %q", errMalformedRule, rule.RuleType)
	}

	if errors.Is(err, errMalformedRule) {
		e.logger.Error("change rule cannot be evaluated, rejecting",
			zap.Int64("rule_id", rule.ID),
			zap.String("rule_name", rule.RuleName),
			zap.Int64("entity_id", change.EntityID),
			zap.String("field_name", change.FieldName),
			zap.Error(err),
		)
		return models.ValidationStatusRejected, fmt.Sprintf("rule %q is misconfigured", rule.RuleName), nil
	}
	if err != nil {
		return "", "", err
	}

	if status == models.ValidationStatusRejected && rule.Enforcement == models.EnforcementSoft {
		status = models.ValidationStatusFlagged
	}
	return status, reason, nil
}

func evaluateMaxFrequency(ctx context.Context, rule models.ChangeRule, history AuditWindowCounter, change ChangeRequest) (models.ValidationStatus, string, error) {
	var params models.MaxFrequencyParams
	if err := decodeRestriction(rule, &params); err != nil {
		return "", "", err
	}
	if err := validateMaxFrequency(params); err != nil {
		return "", "", err
	}
	window := time.Duration(params.WindowMinutes) * time.Minute
	count, err := history.CountNonRejected(ctx, change.EntityID, change.FieldName, change.Timestamp.Add(-window), change.Timestamp)
	if err != nil {
		return "", "", fmt.Errorf("count recent changes: %w", err)
	}
	if count >= params.MaxChangesPerWindow {
		return models.ValidationStatusRejected,
			fmt.Sprintf("%s already changed %d times in the last %d minutes (limit %d)", change.FieldName, count, params.WindowMinutes, params.MaxChangesPerWindow),
			nil
	}
	flagAt := params.FlagAtCount
	if flagAt <= 0 {
		flagAt = params.MaxChangesPerWindow
	}
	if count+1 >= flagAt {
		return models.ValidationStatusFlagged,
			fmt.Sprintf("change %d of %d allowed in %d minutes", count+1, params.MaxChangesPerWindow, params.WindowMinutes),
			nil
	}
	return models.ValidationStatusValid, "", nil
}

func evaluateFieldLock(rule models.ChangeRule, change ChangeRequest) (models.ValidationStatus, string, error) {
	var params models.FieldLockParams
	if err := decodeRestriction(rule, &params); err != nil {
		return "", "", err
	}
	if err := validateFieldLock(params); err != nil {
		return "", "", err
	}
	current := strings.TrimSpace(change.EntityStatus)
	for _, locked := range params.LockedStatuses {
		if strings.EqualFold(strings.TrimSpace(locked), current) {
			return models.ValidationStatusRejected,
				fmt.Sprintf("%s is locked once the issue is %s", change.FieldName, current),
				nil
		}
	}
	return models.ValidationStatusValid, "", nil
}

func evaluateActorAllowlist(rule models.ChangeRule, change ChangeRequest) (models.ValidationStatus, string, error) {
	var params models.ActorAllowlistParams
	if err := decodeRestriction(rule, &params); err != nil {
		return "", "", err
	}
	allowed, err := parseAllowlist(params)
	if err != nil {
		return "", "", err
	}
	for _, entry := range allowed {
		if entry.Kind != change.Actor.Kind {
			continue
		}
		if entry.ID == "" || entry.ID == change.Actor.ID {
			return models.ValidationStatusValid, "", nil
		}
	}
	return models.ValidationStatusRejected,
		fmt.Sprintf("actor %s may not change %s", change.Actor.Key(), change.FieldName),
		nil
}

func evaluateMinLeadTime(rule models.ChangeRule, change ChangeRequest) (models.ValidationStatus, string, error) {
	var params models.MinLeadTimeParams
	if err := decodeRestriction(rule, &params); err != nil {
		return "", "", err
	}
	if params.MinLeadMinutes <= 0 {
		return "", "", fmt.Errorf("%w: minLeadMinutes must be positive", errMalformedRule)
	}
	if !models.IsTimestampField(change.FieldName) || change.NewValue == nil {
		return models.ValidationStatusValid, "", nil
	}
	value, err := time.Parse(time.RFC3339Nano, *change.NewValue)
	if err != nil {
		return models.ValidationStatusRejected, fmt.Sprintf("%s must be an RFC3339 timestamp", change.FieldName), nil
	}
	earliest := change.Timestamp.Add(time.Duration(params.MinLeadMinutes) * time.Minute)
	if value.Before(earliest) {
		return models.ValidationStatusRejected,
			fmt.Sprintf("%s must be at least %d minutes in the future", change.FieldName, params.MinLeadMinutes),
			nil
	}
	return models.ValidationStatusValid, "", nil
}

// ValidateRestriction checks restriction data for a rule type before it is stored.
func ValidateRestriction(ruleType models.RuleType, data models.JSONMap) error {
	rule := models.ChangeRule{RuleType: ruleType, RestrictionData: data}
	switch ruleType {
	case models.RuleTypeMaxFrequency:
		var params models.MaxFrequencyParams
		if err := decodeRestriction(rule, &params); err != nil {
			return err
		}
		return validateMaxFrequency(params)
	case models.RuleTypeFieldLockAfterStatus:
		var params models.FieldLockParams
		if err := decodeRestriction(rule, &params); err != nil {
			return err
		}
		return validateFieldLock(params)
	case models.RuleTypeActorAllowlist:
		var params models.ActorAllowlistParams
		if err := decodeRestriction(rule, &params); err != nil {
			return err
		}
		_, err := parseAllowlist(params)
		return err
	case models.RuleTypeMinLeadTime:
		var params models.MinLeadTimeParams
		if err := decodeRestriction(rule, &params); err != nil {
			return err
		}
		if params.MinLeadMinutes <= 0 {
			return fmt.Errorf("%w: minLeadMinutes must be positive", errMalformedRule)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown rule type %q", errMalformedRule, ruleType)
}

func validateMaxFrequency(params models.MaxFrequencyParams) error {
	if params.MaxChangesPerWindow <= 0 || params.WindowMinutes <= 0 {
		return fmt.Errorf("%w: maxChangesPerWindow and windowMinutes must be positive", errMalformedRule)
	}
	if params.FlagAtCount < 0 {
		return fmt.Errorf("%w: flagAtCount must not be negative", errMalformedRule)
	}
	return nil
}

func validateFieldLock(params models.FieldLockParams) error {
	if len(params.LockedStatuses) == 0 {
		return fmt.Errorf("%w: lockedStatuses must not be empty", errMalformedRule)
	}
	return nil
}

func parseAllowlist(params models.ActorAllowlistParams) ([]models.Actor, error) {
	if len(params.AllowedActors) == 0 {
		return nil, fmt.Errorf("%w: allowedActors must not be empty", errMalformedRule)
	}
	actors := make([]models.Actor, 0, len(params.AllowedActors))
	for _, raw := range params.AllowedActors {
		actor, err := models.ParseActorKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedRule, err)
		}
		actors = append(actors, actor)
	}
	return actors, nil
}

// decodeRestriction maps the JSONB restriction data onto a typed params struct.
func decodeRestriction(rule models.ChangeRule, dest interface{}) error {
	if rule.RestrictionData == nil {
		return fmt.Errorf("%w: restriction data missing", errMalformedRule)
	}
	raw, err := json.Marshal(rule.RestrictionData)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedRule, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", errMalformedRule, err)
	}
	return nil
}
