package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/middleware"
	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/pkg/response"
)

type issueChanger interface {
	ChangeField(ctx context.Context, issueID int64, req dto.ChangeIssueFieldRequest, actor models.Actor, meta dto.RequestMeta) (*dto.ChangeIssueFieldResponse, error)
}

// IssueChangeHandler exposes the audited field mutation endpoint.
type IssueChangeHandler struct {
	changes issueChanger
}

// NewIssueChangeHandler constructs the handler.
func NewIssueChangeHandler(changes issueChanger) *IssueChangeHandler {
	return &IssueChangeHandler{changes: changes}
}

// ChangeField godoc
// @Summary Change an issue field
// @Description Evaluates change rules, applies the mutation and appends an audit record atomically.
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path int true "Issue ID"
// @Param payload body dto.ChangeIssueFieldRequest true "Field change"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /issues/{id}/fields [patch]
func (h *IssueChangeHandler) ChangeField(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.ChangeIssueFieldRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.changes.ChangeField(c.Request.Context(), id, req, actor, middleware.RequestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
