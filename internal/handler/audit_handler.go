package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/middleware"
	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/pkg/response"
)

type auditReader interface {
	Query(ctx context.Context, q dto.AuditQuery) ([]models.AuditRecord, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.AuditRecord, error)
	SummaryStats(ctx context.Context, period string, from, to *time.Time) (*models.AuditSummary, bool, error)
	Export(ctx context.Context, q dto.AuditQuery, format dto.ExportFormat) (*dto.ExportResult, error)
}

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	audit auditReader
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(audit auditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary Query audit records
// @Tags Audit
// @Produce json
// @Param entityId query int false "Issue ID"
// @Param fieldName query string false "Field name"
// @Param action query string false "CREATE, UPDATE or DELETE"
// @Param actorKind query string false "admin, user or system"
// @Param actorId query string false "Actor ID"
// @Param validationStatus query string false "valid, flagged or rejected"
// @Param changeSource query string false "Change source"
// @Param from query string false "Start (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "End (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	query, err := parseAuditQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, pagination, err := h.audit.Query(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get an audit record
// @Tags Audit
// @Produce json
// @Param id path int true "Audit record ID"
// @Success 200 {object} response.Envelope
// @Router /audit-logs/{id} [get]
func (h *AuditHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record, err := h.audit.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Stats godoc
// @Summary Audit summary statistics
// @Tags Audit
// @Produce json
// @Param period query string false "24h, 7d, 30d or 90d; ignored when from and to are set" default(24h)
// @Param from query string false "Custom range start"
// @Param to query string false "Custom range end"
// @Success 200 {object} response.Envelope
// @Router /audit-logs/stats [get]
func (h *AuditHandler) Stats(c *gin.Context) {
	start := time.Now()
	from, err := queryTime(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	period := strings.TrimSpace(c.DefaultQuery("period", "24h"))
	summary, cached, err := h.audit.SummaryStats(c.Request.Context(), period, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c, start))
}

// Export godoc
// @Summary Export audit records
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	query, err := parseAuditQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := dto.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ExportFormatCSV))))
	result, err := h.audit.Export(c.Request.Context(), query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}

func parseAuditQuery(c *gin.Context) (dto.AuditQuery, error) {
	query := dto.AuditQuery{
		FieldName:        strings.TrimSpace(c.Query("fieldName")),
		Action:           models.AuditAction(strings.ToUpper(c.Query("action"))),
		ActorKind:        models.ActorKind(strings.ToLower(c.Query("actorKind"))),
		ActorID:          strings.TrimSpace(c.Query("actorId")),
		ValidationStatus: models.ValidationStatus(strings.ToLower(c.Query("validationStatus"))),
		ChangeSource:     strings.TrimSpace(c.Query("changeSource")),
		Page:             queryInt(c, "page", 1),
		PageSize:         queryInt(c, "limit", 20),
	}
	var err error
	if query.EntityID, err = queryInt64(c, "entityId"); err != nil {
		return query, err
	}
	if query.From, err = queryTime(c, "from"); err != nil {
		return query, err
	}
	if query.To, err = queryTime(c, "to"); err != nil {
		return query, err
	}
	return query, nil
}
