package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

func TestDashboardRefreshComposesSnapshot(t *testing.T) {
	audit := seededAuditStore()
	alerts := newTestAlertService(&memAlertRepo{}, nil)
	_, err := alerts.Create(context.Background(), sampleAlert("a"))
	require.NoError(t, err)

	cache := NewCacheService(newMemCacheRepo(), nil, time.Minute, nil, true)
	svc := NewDashboardService(alerts, newTestAuditService(audit, cache, AuditServiceConfig{}), DashboardServiceConfig{RecentActivity: 2}, nil)

	snapshot, cached, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []models.SeverityCount{{Severity: models.SeverityMedium, Count: 1}}, snapshot.OpenAlerts)
	assert.Len(t, snapshot.LatestAlerts, 1)
	assert.Len(t, snapshot.RecentActivity, 2)
	assert.Equal(t, "24h", snapshot.Stats.Period)

	_, cached, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestDashboardRefreshPropagatesFailure(t *testing.T) {
	audit := seededAuditStore()
	audit.readErr = errors.New("down")
	svc := NewDashboardService(newTestAlertService(&memAlertRepo{}, nil), newTestAuditService(audit, nil, AuditServiceConfig{}), DashboardServiceConfig{}, nil)

	_, _, err := svc.Refresh(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrStorageUnavailable))
}

func TestDashboardRefreshEmptyCollections(t *testing.T) {
	svc := NewDashboardService(newTestAlertService(&memAlertRepo{}, nil), newTestAuditService(&memAuditStore{}, nil, AuditServiceConfig{}), DashboardServiceConfig{}, nil)

	snapshot, _, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snapshot.OpenAlerts)
	assert.NotNil(t, snapshot.LatestAlerts)
	assert.NotNil(t, snapshot.RecentActivity)
}
