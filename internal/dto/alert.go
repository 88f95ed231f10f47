package dto

import (
	"time"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

// ResolveAlertRequest closes an open alert.
type ResolveAlertRequest struct {
	ResolutionNotes string `json:"resolutionNotes" validate:"required,max=2000"`
}

// AlertQuery mirrors supported alert listing filters.
type AlertQuery struct {
	Status    models.AlertStatus
	Severity  models.Severity
	AlertType models.AlertType
	Page      int
	PageSize  int
}

// ScanRequest optionally bounds an on-demand detection run.
type ScanRequest struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// ScanResult summarises a detection run.
type ScanResult struct {
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	RecordsScanned int            `json:"recordsScanned"`
	Candidates     int            `json:"candidates"`
	Created        []models.Alert `json:"created"`
	Duplicates     int            `json:"duplicates"`
	Failed         int            `json:"failed"`
}

// AlertEvent is pushed to subscribers when an alert changes.
type AlertEvent struct {
	Type      string       `json:"type"`
	Alert     models.Alert `json:"alert"`
	EmittedAt time.Time    `json:"emittedAt"`
}

// Alert event types.
const (
	AlertEventCreated  = "alert.created"
	AlertEventResolved = "alert.resolved"
)
