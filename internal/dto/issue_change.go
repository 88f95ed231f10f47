package dto

import "github.com/noah-isme/issue-audit-api/internal/models"

// ChangeIssueFieldRequest is the payload of the audited field mutation endpoint.
// A null NewValue clears the field.
type ChangeIssueFieldRequest struct {
	FieldName    string  `json:"fieldName" validate:"required,oneof=end_date betting_end_date status"`
	NewValue     *string `json:"newValue"`
	ChangeSource string  `json:"changeSource" validate:"omitempty,max=64"`
	Reason       string  `json:"reason" validate:"omitempty,max=500"`
}

// ChangeIssueFieldResponse returns the committed issue and the audit trail entry.
type ChangeIssueFieldResponse struct {
	Issue    *models.Issue       `json:"issue"`
	Audit    *models.AuditRecord `json:"audit"`
	Decision *RuleDecision       `json:"decision"`
}

// RequestMeta carries boundary details recorded with human-initiated changes.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}
