package models

import "time"

// ConsistencyReport is persisted whenever an observed value drifts from the store.
type ConsistencyReport struct {
	ID                 int64     `db:"id" json:"id"`
	EntityID           int64     `db:"entity_id" json:"entityId"`
	FieldName          string    `db:"field_name" json:"fieldName"`
	ObservedValue      *string   `db:"observed_value" json:"observedValue"`
	AuthoritativeValue *string   `db:"authoritative_value" json:"authoritativeValue"`
	DifferenceMs       *int64    `db:"difference_ms" json:"differenceMs,omitempty"`
	ToleranceMs        int64     `db:"tolerance_ms" json:"toleranceMs"`
	ReportedBy         string    `db:"reported_by" json:"reportedBy"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}
