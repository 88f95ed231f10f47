package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

func sampleAlert(key string) *models.Alert {
	return &models.Alert{
		AlertType:        models.AlertTypeRapidChange,
		Severity:         models.SeverityMedium,
		Description:      "end_date of issue 124 changed 4 times",
		RelatedEntityIDs: pq.Int64Array{124},
		DetectionData:    models.JSONMap{"count": 4},
		DedupKey:         key,
	}
}

func newTestAlertService(repo *memAlertRepo, publisher AlertPublisher) *AlertService {
	clock := newTestClock(scanEpoch)
	return NewAlertService(repo, nil, nil, nil, WithAlertPublisher(publisher), WithAlertClock(clock.Now))
}

func TestResolveRoundTrip(t *testing.T) {
	repo := &memAlertRepo{}
	publisher := &recordingPublisher{}
	svc := newTestAlertService(repo, publisher)
	ctx := context.Background()

	alert := sampleAlert("RAPID_CHANGE|124|2026-03-02T14:00:00Z")
	created, err := svc.Create(ctx, alert)
	require.NoError(t, err)
	require.True(t, created)

	resolved, err := svc.Resolve(ctx, alert.ID, dto.ResolveAlertRequest{ResolutionNotes: "false positive, scheduled maintenance"}, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, testAdmin.Key(), *resolved.ResolvedBy)
	assert.Equal(t, scanEpoch, *resolved.ResolvedAt)

	open, _, err := svc.List(ctx, dto.AlertQuery{Status: models.AlertStatusOpen})
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, page, err := svc.List(ctx, dto.AlertQuery{Status: models.AlertStatusResolved})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, alert.ID, closed[0].ID)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "false positive, scheduled maintenance", *closed[0].ResolutionNotes)

	_, err = svc.Resolve(ctx, alert.ID, dto.ResolveAlertRequest{ResolutionNotes: "again"}, models.AdminActor("2", ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidState))

	assert.Equal(t, []string{dto.AlertEventCreated, dto.AlertEventResolved}, publisher.types())
}

func TestResolveUnknownAlert(t *testing.T) {
	svc := newTestAlertService(&memAlertRepo{}, &recordingPublisher{})
	_, err := svc.Resolve(context.Background(), 404, dto.ResolveAlertRequest{ResolutionNotes: "n/a"}, testAdmin)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestResolveRequiresNotes(t *testing.T) {
	repo := &memAlertRepo{}
	svc := newTestAlertService(repo, &recordingPublisher{})
	alert := sampleAlert("k")
	_, err := svc.Create(context.Background(), alert)
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), alert.ID, dto.ResolveAlertRequest{ResolutionNotes: "   "}, testAdmin)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, models.AlertStatusOpen, repo.alerts[0].Status)
}

func TestCreateDeduplicatesOpenAlerts(t *testing.T) {
	repo := &memAlertRepo{}
	publisher := &recordingPublisher{}
	svc := newTestAlertService(repo, publisher)
	ctx := context.Background()

	first := sampleAlert("dup")
	created, err := svc.Create(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Create(ctx, sampleAlert("dup"))
	require.NoError(t, err)
	assert.False(t, created)

	_, err = svc.Resolve(ctx, first.ID, dto.ResolveAlertRequest{ResolutionNotes: "handled"}, testAdmin)
	require.NoError(t, err)

	created, err = svc.Create(ctx, sampleAlert("dup"))
	require.NoError(t, err)
	assert.True(t, created, "a resolved alert does not block a recurrence")
	assert.Len(t, repo.alerts, 2)
	assert.Len(t, publisher.types(), 3)
}

func TestCreateValidatesCandidate(t *testing.T) {
	svc := newTestAlertService(&memAlertRepo{}, nil)

	bad := sampleAlert("k")
	bad.Severity = "urgent"
	_, err := svc.Create(context.Background(), bad)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), sampleAlert(""))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCreateStorageFailure(t *testing.T) {
	svc := newTestAlertService(&memAlertRepo{insertErr: errors.New("down")}, nil)
	_, err := svc.Create(context.Background(), sampleAlert("k"))
	assert.True(t, errors.Is(err, appErrors.ErrStorageUnavailable))
}

func TestListRejectsUnknownFilters(t *testing.T) {
	svc := newTestAlertService(&memAlertRepo{}, nil)
	_, _, err := svc.List(context.Background(), dto.AlertQuery{Status: "pending"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, _, err = svc.List(context.Background(), dto.AlertQuery{Severity: "urgent"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestOpenBySeverity(t *testing.T) {
	repo := &memAlertRepo{}
	svc := newTestAlertService(repo, nil)
	ctx := context.Background()
	for i, sev := range []models.Severity{models.SeverityMedium, models.SeverityCritical, models.SeverityMedium} {
		alert := sampleAlert(time.Duration(i).String())
		alert.Severity = sev
		_, err := svc.Create(ctx, alert)
		require.NoError(t, err)
	}

	counts, err := svc.OpenBySeverity(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SeverityCount{
		{Severity: models.SeverityCritical, Count: 1},
		{Severity: models.SeverityMedium, Count: 2},
	}, counts)
}
