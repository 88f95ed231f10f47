package dto

import "github.com/noah-isme/issue-audit-api/internal/models"

// DashboardSnapshot is the pull-refresh payload for the admin dashboard.
type DashboardSnapshot struct {
	OpenAlerts     []models.SeverityCount `json:"openAlerts"`
	LatestAlerts   []models.Alert         `json:"latestAlerts"`
	RecentActivity []models.AuditRecord   `json:"recentActivity"`
	Stats          *models.AuditSummary   `json:"stats"`
}
