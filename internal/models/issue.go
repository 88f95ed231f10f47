package models

import "time"

// Issue is the slice of the prediction-market question this service reads and mutates.
type Issue struct {
	ID             int64      `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	Status         string     `db:"status" json:"status"`
	EndDate        *time.Time `db:"end_date" json:"endDate"`
	BettingEndDate *time.Time `db:"betting_end_date" json:"bettingEndDate"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// TimestampLayout is the canonical text form of timestamp values in audit records.
const TimestampLayout = time.RFC3339Nano

// FieldValue renders a tracked field in its audit text form. ok is false for untracked fields.
func (i Issue) FieldValue(field string) (value *string, ok bool) {
	switch field {
	case FieldEndDate:
		return formatTime(i.EndDate), true
	case FieldBettingEndDate:
		return formatTime(i.BettingEndDate), true
	case FieldStatus:
		status := i.Status
		return &status, true
	}
	return nil, false
}

// IsTrackedField reports whether mutations of the field are audited.
func IsTrackedField(field string) bool {
	switch field {
	case FieldEndDate, FieldBettingEndDate, FieldStatus:
		return true
	}
	return false
}

// IsTimestampField reports whether the field stores a timestamp.
func IsTimestampField(field string) bool {
	return field == FieldEndDate || field == FieldBettingEndDate
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(TimestampLayout)
	return &v
}
