package models

import "time"

// RuleType enumerates supported change restrictions.
type RuleType string

const (
	RuleTypeMaxFrequency         RuleType = "max_frequency"
	RuleTypeFieldLockAfterStatus RuleType = "field_lock_after_status"
	RuleTypeActorAllowlist       RuleType = "actor_allowlist"
	RuleTypeMinLeadTime          RuleType = "min_lead_time"
)

// RuleEnforcement decides whether a violation rejects or only flags a change.
type RuleEnforcement string

const (
	EnforcementHard RuleEnforcement = "hard"
	EnforcementSoft RuleEnforcement = "soft"
)

// ChangeRule is a named restriction on issue field mutations.
// Rules are soft-disabled through IsActive and never deleted.
type ChangeRule struct {
	ID              int64           `db:"id" json:"id"`
	RuleName        string          `db:"rule_name" json:"ruleName"`
	RuleType        RuleType        `db:"rule_type" json:"ruleType"`
	FieldName       *string         `db:"field_name" json:"fieldName"`
	RestrictionData JSONMap         `db:"restriction_data" json:"restrictionData"`
	Enforcement     RuleEnforcement `db:"enforcement" json:"enforcement"`
	Description     string          `db:"description" json:"description"`
	IsActive        bool            `db:"is_active" json:"isActive"`
	CreatedBy       string          `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// AppliesTo reports whether the rule governs the given field.
func (r ChangeRule) AppliesTo(field string) bool {
	return r.FieldName == nil || *r.FieldName == "" || *r.FieldName == field
}

// ChangeRuleFilter constrains rule listings.
type ChangeRuleFilter struct {
	RuleType  RuleType
	FieldName string
	Active    *bool
}

// MaxFrequencyParams is the restriction data of a max_frequency rule.
type MaxFrequencyParams struct {
	MaxChangesPerWindow int `json:"maxChangesPerWindow"`
	WindowMinutes       int `json:"windowMinutes"`
	FlagAtCount         int `json:"flagAtCount,omitempty"`
}

// FieldLockParams is the restriction data of a field_lock_after_status rule.
type FieldLockParams struct {
	LockedStatuses []string `json:"lockedStatuses"`
}

// ActorAllowlistParams is the restriction data of an actor_allowlist rule.
// Entries are "kind" or "kind:id".
type ActorAllowlistParams struct {
	AllowedActors []string `json:"allowedActors"`
}

// MinLeadTimeParams is the restriction data of a min_lead_time rule.
type MinLeadTimeParams struct {
	MinLeadMinutes int `json:"minLeadMinutes"`
}
