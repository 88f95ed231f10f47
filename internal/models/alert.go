package models

import (
	"time"

	"github.com/lib/pq"
)

// AlertType names a detection heuristic.
type AlertType string

const (
	AlertTypeRapidChange      AlertType = "RAPID_CHANGE"
	AlertTypeOffHoursBulkEdit AlertType = "OFF_HOURS_BULK_EDIT"
	AlertTypeAutomatedAgent   AlertType = "AUTOMATED_AGENT_SIGNATURE"
)

// Severity is ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of the severity, 0 when unknown.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether the severity is known.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AlertStatus is the alert lifecycle state.
type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "open"
	AlertStatusResolved AlertStatus = "resolved"
)

// Alert is a detected suspicious condition awaiting review.
type Alert struct {
	ID               int64         `db:"id" json:"id"`
	AlertType        AlertType     `db:"alert_type" json:"alertType"`
	Severity         Severity      `db:"severity" json:"severity"`
	Description      string        `db:"description" json:"description"`
	RelatedEntityIDs pq.Int64Array `db:"related_entity_ids" json:"relatedEntityIds"`
	RelatedActorID   *string       `db:"related_actor_id" json:"relatedActorId,omitempty"`
	AuditIDs         pq.Int64Array `db:"audit_ids" json:"auditIds"`
	DetectionData    JSONMap       `db:"detection_data" json:"detectionData"`
	DedupKey         string        `db:"dedup_key" json:"dedupKey"`
	Status           AlertStatus   `db:"status" json:"status"`
	ResolvedBy       *string       `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolutionNotes  *string       `db:"resolution_notes" json:"resolutionNotes,omitempty"`
	ResolvedAt       *time.Time    `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
}

// AlertFilter constrains alert listings.
type AlertFilter struct {
	Status    AlertStatus
	Severity  Severity
	AlertType AlertType
	Page      int
	PageSize  int
}

// SeverityCount is an open-alert tally per severity.
type SeverityCount struct {
	Severity Severity `db:"severity" json:"severity"`
	Count    int      `db:"count" json:"count"`
}
