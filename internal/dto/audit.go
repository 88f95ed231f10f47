package dto

import (
	"time"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

// AuditQuery mirrors the supported audit log filters.
type AuditQuery struct {
	EntityID         *int64
	FieldName        string
	Action           models.AuditAction
	ActorKind        models.ActorKind
	ActorID          string
	ValidationStatus models.ValidationStatus
	ChangeSource     string
	From             *time.Time
	To               *time.Time
	Page             int
	PageSize         int
}

// Filter converts the query into the repository filter.
func (q AuditQuery) Filter() models.AuditFilter {
	return models.AuditFilter{
		EntityID:         q.EntityID,
		FieldName:        q.FieldName,
		Action:           q.Action,
		ActorKind:        q.ActorKind,
		ActorID:          q.ActorID,
		ValidationStatus: q.ValidationStatus,
		ChangeSource:     q.ChangeSource,
		From:             q.From,
		To:               q.To,
		Page:             q.Page,
		PageSize:         q.PageSize,
	}
}

// ExportFormat selects the audit export renderer.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered audit export.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}
