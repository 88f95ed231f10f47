package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/pkg/response"
)

type consistencyValidator interface {
	Validate(ctx context.Context, req dto.ValidateConsistencyRequest, actor models.Actor) (*dto.ConsistencyResult, error)
	ValidateMany(ctx context.Context, req dto.ValidateConsistencyBatchRequest, actor models.Actor) (*dto.ConsistencySummary, error)
	ListReports(ctx context.Context, q dto.ConsistencyReportQuery) ([]models.ConsistencyReport, *models.Pagination, error)
}

// ConsistencyHandler compares client snapshots against the authoritative store.
type ConsistencyHandler struct {
	validator consistencyValidator
}

// NewConsistencyHandler constructs the handler.
func NewConsistencyHandler(validator consistencyValidator) *ConsistencyHandler {
	return &ConsistencyHandler{validator: validator}
}

// Validate godoc
// @Summary Validate one observed value
// @Tags Consistency
// @Accept json
// @Produce json
// @Param payload body dto.ValidateConsistencyRequest true "Observed value"
// @Success 200 {object} response.Envelope
// @Router /consistency/validate [post]
func (h *ConsistencyHandler) Validate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ValidateConsistencyRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.validator.Validate(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ValidateBatch godoc
// @Summary Validate many observed values
// @Description Per-item failures are reported in the summary without failing the batch.
// @Tags Consistency
// @Accept json
// @Produce json
// @Param payload body dto.ValidateConsistencyBatchRequest true "Observed values"
// @Success 200 {object} response.Envelope
// @Router /consistency/validate-batch [post]
func (h *ConsistencyHandler) ValidateBatch(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ValidateConsistencyBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.validator.ValidateMany(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Reports godoc
// @Summary List drift reports
// @Tags Consistency
// @Produce json
// @Param entityId query int false "Issue ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /consistency/reports [get]
func (h *ConsistencyHandler) Reports(c *gin.Context) {
	entityID, err := queryInt64(c, "entityId")
	if err != nil {
		response.Error(c, err)
		return
	}
	reports, pagination, err := h.validator.ListReports(c.Request.Context(), dto.ConsistencyReportQuery{
		EntityID: entityID,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 20),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}
