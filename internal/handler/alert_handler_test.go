package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

type fakeAlertManager struct {
	lastQuery   dto.AlertQuery
	lastResolve dto.ResolveAlertRequest
	lastActor   models.Actor
	alert       *models.Alert
	resolveErr  error
}

func (f *fakeAlertManager) List(_ context.Context, q dto.AlertQuery) ([]models.Alert, *models.Pagination, error) {
	f.lastQuery = q
	return []models.Alert{*f.alert}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeAlertManager) Get(_ context.Context, id int64) (*models.Alert, error) {
	if f.alert == nil || f.alert.ID != id {
		return nil, appErrors.ErrNotFound
	}
	return f.alert, nil
}

func (f *fakeAlertManager) Resolve(_ context.Context, id int64, req dto.ResolveAlertRequest, actor models.Actor) (*models.Alert, error) {
	f.lastResolve = req
	f.lastActor = actor
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	resolved := *f.alert
	resolved.Status = models.AlertStatusResolved
	return &resolved, nil
}

type fakeScanner struct {
	detected int
	from, to time.Time
}

func (f *fakeScanner) Detect(context.Context) (*dto.ScanResult, error) {
	f.detected++
	return &dto.ScanResult{Candidates: 1, Created: []models.Alert{}}, nil
}

func (f *fakeScanner) Scan(_ context.Context, from, to time.Time) (*dto.ScanResult, error) {
	f.from, f.to = from, to
	if !from.Before(to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scan range is empty")
	}
	return &dto.ScanResult{From: from, To: to, Created: []models.Alert{}}, nil
}

type fakeSubscriber struct {
	events chan dto.AlertEvent
}

func (f *fakeSubscriber) Subscribe(context.Context) (<-chan dto.AlertEvent, error) {
	return f.events, nil
}

type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func openAlert() *models.Alert {
	return &models.Alert{
		ID:               7,
		AlertType:        models.AlertTypeRapidChange,
		Severity:         models.SeverityMedium,
		RelatedEntityIDs: pq.Int64Array{124},
		Status:           models.AlertStatusOpen,
	}
}

func alertRouter(h *AlertHandler) *gin.Engine {
	return newAuthedRouter(func(r gin.IRoutes) {
		r.GET("/alerts", h.List)
		r.POST("/alerts/scan", h.Scan)
		r.GET("/alerts/stream", h.Stream)
		r.GET("/alerts/:id", h.Get)
		r.POST("/alerts/:id/resolve", h.Resolve)
	})
}

func TestAlertListNormalisesFilters(t *testing.T) {
	alerts := &fakeAlertManager{alert: openAlert()}
	r := alertRouter(NewAlertHandler(alerts, &fakeScanner{}, nil))

	rec, envelope := perform(t, r, http.MethodGet, "/alerts?status=OPEN&severity=High&alertType=rapid_change", nil, models.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AlertStatusOpen, alerts.lastQuery.Status)
	assert.Equal(t, models.SeverityHigh, alerts.lastQuery.Severity)
	assert.Equal(t, models.AlertTypeRapidChange, alerts.lastQuery.AlertType)
	assert.Equal(t, float64(1), envelope.Pagination["total_count"])
}

func TestAlertResolve(t *testing.T) {
	alerts := &fakeAlertManager{alert: openAlert()}
	r := alertRouter(NewAlertHandler(alerts, &fakeScanner{}, nil))

	rec, envelope := perform(t, r, http.MethodPost, "/alerts/7/resolve", dto.ResolveAlertRequest{ResolutionNotes: "known batch job"}, models.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "known batch job", alerts.lastResolve.ResolutionNotes)
	assert.Equal(t, "admin:9", alerts.lastActor.Key())
	var resolved models.Alert
	decodeData(t, envelope, &resolved)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)

	alerts.resolveErr = appErrors.Clone(appErrors.ErrInvalidState, "alert is already resolved")
	rec, envelope = perform(t, r, http.MethodPost, "/alerts/7/resolve", dto.ResolveAlertRequest{ResolutionNotes: "again"}, models.RoleAdmin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", envelope.Error.Code)
}

func TestAlertGetUnknown(t *testing.T) {
	r := alertRouter(NewAlertHandler(&fakeAlertManager{alert: openAlert()}, &fakeScanner{}, nil))
	rec, _ := perform(t, r, http.MethodGet, "/alerts/8", nil, models.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertScanModes(t *testing.T) {
	scanner := &fakeScanner{}
	r := alertRouter(NewAlertHandler(&fakeAlertManager{alert: openAlert()}, scanner, nil))

	rec, _ := perform(t, r, http.MethodPost, "/alerts/scan", nil, models.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, scanner.detected)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(6 * time.Hour)
	rec, _ = perform(t, r, http.MethodPost, "/alerts/scan", dto.ScanRequest{From: &from, To: &to}, models.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, scanner.from.Equal(from))
	assert.True(t, scanner.to.Equal(to))

	rec, _ = perform(t, r, http.MethodPost, "/alerts/scan", dto.ScanRequest{From: &from}, models.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = perform(t, r, http.MethodPost, "/alerts/scan", dto.ScanRequest{From: &to, To: &from}, models.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertStreamWithoutBus(t *testing.T) {
	r := alertRouter(NewAlertHandler(&fakeAlertManager{alert: openAlert()}, &fakeScanner{}, nil))
	rec, envelope := perform(t, r, http.MethodGet, "/alerts/stream", nil, models.RoleAdmin)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORAGE_UNAVAILABLE", envelope.Error.Code)
}

func TestAlertStreamWritesEvents(t *testing.T) {
	events := make(chan dto.AlertEvent, 2)
	events <- dto.AlertEvent{Type: dto.AlertEventCreated, Alert: *openAlert(), EmittedAt: time.Now().UTC()}
	close(events)

	h := NewAlertHandler(&fakeAlertManager{alert: openAlert()}, &fakeScanner{}, &fakeSubscriber{events: events})
	h.heartbeat = time.Hour

	gin.SetMode(gin.TestMode)
	rec := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/alerts/stream", nil)
	h.Stream(c)

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.True(t, strings.Contains(body, "event:alert.created"))
	assert.Contains(t, body, `"relatedEntityIds":[124]`)
}
