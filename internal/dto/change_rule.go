package dto

import (
	"time"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

// CreateChangeRuleRequest defines a new restriction.
type CreateChangeRuleRequest struct {
	RuleName        string                 `json:"ruleName" validate:"required,max=120"`
	RuleType        models.RuleType        `json:"ruleType" validate:"required,oneof=max_frequency field_lock_after_status actor_allowlist min_lead_time"`
	FieldName       *string                `json:"fieldName" validate:"omitempty,oneof=end_date betting_end_date status"`
	RestrictionData map[string]interface{} `json:"restrictionData" validate:"required"`
	Enforcement     models.RuleEnforcement `json:"enforcement" validate:"omitempty,oneof=hard soft"`
	Description     string                 `json:"description" validate:"omitempty,max=500"`
	IsActive        *bool                  `json:"isActive"`
}

// UpdateChangeRuleRequest replaces the mutable parts of a rule.
type UpdateChangeRuleRequest struct {
	RuleName        string                 `json:"ruleName" validate:"required,max=120"`
	FieldName       *string                `json:"fieldName" validate:"omitempty,oneof=end_date betting_end_date status"`
	RestrictionData map[string]interface{} `json:"restrictionData" validate:"required"`
	Enforcement     models.RuleEnforcement `json:"enforcement" validate:"omitempty,oneof=hard soft"`
	Description     string                 `json:"description" validate:"omitempty,max=500"`
}

// SetRuleActiveRequest toggles a rule.
type SetRuleActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// RuleQuery mirrors supported rule listing filters.
type RuleQuery struct {
	RuleType  models.RuleType
	FieldName string
	Active    *bool
}

// EvaluateChangeRequest is a dry-run evaluation payload.
type EvaluateChangeRequest struct {
	EntityID     int64      `json:"entityId" validate:"required,gt=0"`
	FieldName    string     `json:"fieldName" validate:"required"`
	OldValue     *string    `json:"oldValue"`
	NewValue     *string    `json:"newValue"`
	EntityStatus string     `json:"entityStatus"`
	Timestamp    *time.Time `json:"timestamp"`
}

// RuleOutcome is the verdict of a single rule.
type RuleOutcome struct {
	RuleID   int64                   `json:"ruleId"`
	RuleName string                  `json:"ruleName"`
	RuleType models.RuleType         `json:"ruleType"`
	Status   models.ValidationStatus `json:"status"`
	Reason   string                  `json:"reason,omitempty"`
}

// RuleDecision is the aggregated engine verdict.
type RuleDecision struct {
	Allowed          bool                    `json:"allowed"`
	ValidationStatus models.ValidationStatus `json:"validationStatus"`
	ViolatedRuleID   *int64                  `json:"violatedRuleId,omitempty"`
	ViolatedRuleName string                  `json:"violatedRuleName,omitempty"`
	Reason           string                  `json:"reason,omitempty"`
	FlaggedRuleIDs   []int64                 `json:"flaggedRuleIds,omitempty"`
	Outcomes         []RuleOutcome           `json:"outcomes"`
}
