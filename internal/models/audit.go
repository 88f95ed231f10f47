package models

import (
	"encoding/json"
	"time"
)

// ValidationStatus is the rule engine outcome stamped on every audit record.
type ValidationStatus string

const (
	ValidationStatusValid    ValidationStatus = "valid"
	ValidationStatusRejected ValidationStatus = "rejected"
	ValidationStatusFlagged  ValidationStatus = "flagged"
)

// AuditAction describes the kind of mutation recorded.
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// Change sources seen in the issue workflow. The column is free-form.
const (
	ChangeSourceAPI          = "API"
	ChangeSourceScheduledJob = "SCHEDULED_JOB"
	ChangeSourceMigration    = "MIGRATION"
	ChangeSourceAdminPanel   = "ADMIN_PANEL"
)

// Tracked issue fields.
const (
	FieldEndDate        = "end_date"
	FieldBettingEndDate = "betting_end_date"
	FieldStatus         = "status"
)

// AuditRecord is one immutable field mutation on an issue.
type AuditRecord struct {
	ID               int64            `db:"id" json:"id"`
	EntityID         int64            `db:"entity_id" json:"entityId"`
	FieldName        string           `db:"field_name" json:"fieldName"`
	OldValue         *string          `db:"old_value" json:"oldValue"`
	NewValue         *string          `db:"new_value" json:"newValue"`
	Action           AuditAction      `db:"action" json:"action"`
	ActorKind        ActorKind        `db:"actor_kind" json:"-"`
	ActorID          string           `db:"actor_id" json:"-"`
	ActorDisplay     string           `db:"actor_display" json:"-"`
	ChangeSource     string           `db:"change_source" json:"changeSource"`
	IPAddress        *string          `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent        *string          `db:"user_agent" json:"userAgent,omitempty"`
	ValidationStatus ValidationStatus `db:"validation_status" json:"validationStatus"`
	Metadata         JSONMap          `db:"metadata" json:"metadata"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}

// Actor reassembles the tagged actor from its columns.
func (r AuditRecord) Actor() Actor {
	return Actor{Kind: r.ActorKind, ID: r.ActorID, DisplayName: r.ActorDisplay}
}

// MarshalJSON exposes the actor columns as a nested object.
func (r AuditRecord) MarshalJSON() ([]byte, error) {
	type record AuditRecord
	return json.Marshal(struct {
		record
		Actor Actor `json:"actor"`
	}{record: record(r), Actor: r.Actor()})
}

// AuditRecordInput carries the caller supplied fields of a new record.
type AuditRecordInput struct {
	EntityID         int64
	FieldName        string
	OldValue         *string
	NewValue         *string
	Action           AuditAction
	Actor            Actor
	ChangeSource     string
	IPAddress        *string
	UserAgent        *string
	ValidationStatus ValidationStatus
	Metadata         JSONMap
	CreatedAt        time.Time
}

// AuditFilter constrains audit queries. From is inclusive, To exclusive.
type AuditFilter struct {
	EntityID         *int64
	FieldName        string
	Action           AuditAction
	ActorKind        ActorKind
	ActorID          string
	ValidationStatus ValidationStatus
	ChangeSource     string
	From             *time.Time
	To               *time.Time
	Page             int
	PageSize         int
}

// AuditSummary aggregates audit activity over a period.
type AuditSummary struct {
	Period        string          `json:"period"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Total         int             `json:"total"`
	PerAction     map[string]int  `json:"perAction"`
	PerField      map[string]int  `json:"perField"`
	PerStatus     map[string]int  `json:"perStatus"`
	DailyActivity []DailyActivity `json:"dailyActivity"`
	TopActors     []ActorActivity `json:"topActors"`
}

// DailyActivity is the per-day record count.
type DailyActivity struct {
	Day   time.Time `db:"day" json:"day"`
	Count int       `db:"count" json:"count"`
}

// ActorActivity ranks actors by record count.
type ActorActivity struct {
	ActorKind ActorKind `db:"actor_kind" json:"kind"`
	ActorID   string    `db:"actor_id" json:"id"`
	Count     int       `db:"count" json:"count"`
}

// KeyCount is a generic grouped count row.
type KeyCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}
