package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
	"github.com/noah-isme/issue-audit-api/pkg/response"
)

type alertManager interface {
	List(ctx context.Context, q dto.AlertQuery) ([]models.Alert, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Alert, error)
	Resolve(ctx context.Context, id int64, req dto.ResolveAlertRequest, actor models.Actor) (*models.Alert, error)
}

type alertScanner interface {
	Detect(ctx context.Context) (*dto.ScanResult, error)
	Scan(ctx context.Context, from, to time.Time) (*dto.ScanResult, error)
}

type alertSubscriber interface {
	Subscribe(ctx context.Context) (<-chan dto.AlertEvent, error)
}

const streamHeartbeat = 25 * time.Second

// AlertHandler exposes alert triage endpoints.
type AlertHandler struct {
	alerts     alertManager
	scanner    alertScanner
	subscriber alertSubscriber
	heartbeat  time.Duration
}

// NewAlertHandler constructs the handler. subscriber may be nil when no event bus is configured.
func NewAlertHandler(alerts alertManager, scanner alertScanner, subscriber alertSubscriber) *AlertHandler {
	return &AlertHandler{alerts: alerts, scanner: scanner, subscriber: subscriber, heartbeat: streamHeartbeat}
}

// List godoc
// @Summary List alerts
// @Tags Alerts
// @Produce json
// @Param status query string false "open or resolved"
// @Param severity query string false "low, medium, high or critical"
// @Param alertType query string false "Alert type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	alerts, pagination, err := h.alerts.List(c.Request.Context(), dto.AlertQuery{
		Status:    models.AlertStatus(strings.ToLower(c.Query("status"))),
		Severity:  models.Severity(strings.ToLower(c.Query("severity"))),
		AlertType: models.AlertType(strings.ToUpper(c.Query("alertType"))),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "limit", 20),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, pagination)
}

// Get godoc
// @Summary Get an alert
// @Tags Alerts
// @Produce json
// @Param id path int true "Alert ID"
// @Success 200 {object} response.Envelope
// @Router /alerts/{id} [get]
func (h *AlertHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	alert, err := h.alerts.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alert, nil)
}

// Resolve godoc
// @Summary Resolve an open alert
// @Tags Alerts
// @Accept json
// @Produce json
// @Param id path int true "Alert ID"
// @Param payload body dto.ResolveAlertRequest true "Resolution notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /alerts/{id}/resolve [post]
func (h *AlertHandler) Resolve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveAlertRequest
	if !bindJSON(c, &req) {
		return
	}
	alert, err := h.alerts.Resolve(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alert, nil)
}

// Scan godoc
// @Summary Run suspicious activity detection
// @Description Without a body the configured lookback window ending now is scanned.
// @Tags Alerts
// @Accept json
// @Produce json
// @Param payload body dto.ScanRequest false "Optional range"
// @Success 200 {object} response.Envelope
// @Router /alerts/scan [post]
func (h *AlertHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	var (
		result *dto.ScanResult
		err    error
	)
	switch {
	case req.From == nil && req.To == nil:
		result, err = h.scanner.Detect(c.Request.Context())
	case req.From != nil && req.To != nil:
		result, err = h.scanner.Scan(c.Request.Context(), *req.From, *req.To)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "from and to must be provided together")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Stream godoc
// @Summary Stream alert events
// @Description Server-sent events for alert creation and resolution.
// @Tags Alerts
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /alerts/stream [get]
func (h *AlertHandler) Stream(c *gin.Context) {
	if h.subscriber == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrStorageUnavailable, "alert stream is not configured"))
		return
	}
	events, err := h.subscriber.Subscribe(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.StorageUnavailable(err, "alert stream is unavailable"))
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
