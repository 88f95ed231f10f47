package dto

// ValidateConsistencyRequest compares a caller-held value with the store.
type ValidateConsistencyRequest struct {
	EntityID      int64   `json:"entityId" validate:"required,gt=0"`
	FieldName     string  `json:"fieldName" validate:"omitempty,oneof=end_date betting_end_date status"`
	ObservedValue *string `json:"observedValue"`
}

// ValidateConsistencyBatchRequest carries many snapshot checks.
type ValidateConsistencyBatchRequest struct {
	Items []ValidateConsistencyRequest `json:"items" validate:"required,min=1"`
}

// Recovery tells the caller which value to display instead of its stale copy.
type Recovery struct {
	Action string  `json:"action"`
	Value  *string `json:"value"`
}

// RecoveryReplaceObserved instructs the caller to adopt the authoritative value.
const RecoveryReplaceObserved = "replace_observed"

// ConsistencyResult is the outcome for one entity.
type ConsistencyResult struct {
	EntityID           int64     `json:"entityId"`
	FieldName          string    `json:"fieldName"`
	IsConsistent       bool      `json:"isConsistent"`
	ObservedValue      *string   `json:"observedValue"`
	AuthoritativeValue *string   `json:"authoritativeValue"`
	DifferenceMs       *int64    `json:"differenceMs,omitempty"`
	Recovery           *Recovery `json:"recovery,omitempty"`
	ReportID           *int64    `json:"reportId,omitempty"`
}

// ConsistencyItemError reports a per-item failure inside a batch.
type ConsistencyItemError struct {
	Index    int    `json:"index"`
	EntityID int64  `json:"entityId"`
	Message  string `json:"message"`
}

// ConsistencySummary is the batch validation result. Items that failed are counted in
// ErrorCount and listed in Errors; the batch itself still succeeds.
type ConsistencySummary struct {
	Total               int                    `json:"total"`
	ConsistentCount     int                    `json:"consistentCount"`
	InconsistentCount   int                    `json:"inconsistentCount"`
	ErrorCount          int                    `json:"errorCount"`
	InconsistentDetails []ConsistencyResult    `json:"inconsistentDetails"`
	Errors              []ConsistencyItemError `json:"errors"`
}

// ConsistencyReportQuery pages persisted drift reports.
type ConsistencyReportQuery struct {
	EntityID *int64
	Page     int
	PageSize int
}
