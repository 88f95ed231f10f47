package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/pkg/response"
)

type ruleManager interface {
	List(ctx context.Context, q dto.RuleQuery) ([]models.ChangeRule, error)
	Get(ctx context.Context, id int64) (*models.ChangeRule, error)
	Create(ctx context.Context, req dto.CreateChangeRuleRequest, actor models.Actor) (*models.ChangeRule, error)
	Update(ctx context.Context, id int64, req dto.UpdateChangeRuleRequest, actor models.Actor) (*models.ChangeRule, error)
	SetActive(ctx context.Context, id int64, req dto.SetRuleActiveRequest, actor models.Actor) (*models.ChangeRule, error)
	DryRun(ctx context.Context, req dto.EvaluateChangeRequest, actor models.Actor) (*dto.RuleDecision, error)
}

// RuleHandler manages change restriction rules.
type RuleHandler struct {
	rules ruleManager
}

// NewRuleHandler constructs the handler.
func NewRuleHandler(rules ruleManager) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// List godoc
// @Summary List change rules
// @Tags Rules
// @Produce json
// @Param ruleType query string false "Rule type"
// @Param fieldName query string false "Field name"
// @Param active query bool false "Active flag"
// @Success 200 {object} response.Envelope
// @Router /rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	active, err := queryBool(c, "active")
	if err != nil {
		response.Error(c, err)
		return
	}
	rules, err := h.rules.List(c.Request.Context(), dto.RuleQuery{
		RuleType:  models.RuleType(strings.TrimSpace(c.Query("ruleType"))),
		FieldName: strings.TrimSpace(c.Query("fieldName")),
		Active:    active,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// Get godoc
// @Summary Get a change rule
// @Tags Rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} response.Envelope
// @Router /rules/{id} [get]
func (h *RuleHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.rules.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Create godoc
// @Summary Create a change rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param payload body dto.CreateChangeRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /rules [post]
func (h *RuleHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateChangeRuleRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// Update godoc
// @Summary Update a change rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param id path int true "Rule ID"
// @Param payload body dto.UpdateChangeRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Router /rules/{id} [put]
func (h *RuleHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateChangeRuleRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// SetActive godoc
// @Summary Enable or disable a change rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param id path int true "Rule ID"
// @Param payload body dto.SetRuleActiveRequest true "Active flag"
// @Success 200 {object} response.Envelope
// @Router /rules/{id}/active [patch]
func (h *RuleHandler) SetActive(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.SetRuleActiveRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := h.rules.SetActive(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Evaluate godoc
// @Summary Dry-run the rule engine
// @Description Evaluates active rules against a hypothetical change without mutating anything.
// @Tags Rules
// @Accept json
// @Produce json
// @Param payload body dto.EvaluateChangeRequest true "Hypothetical change"
// @Success 200 {object} response.Envelope
// @Router /rules/evaluate [post]
func (h *RuleHandler) Evaluate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.EvaluateChangeRequest
	if !bindJSON(c, &req) {
		return
	}
	decision, err := h.rules.DryRun(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}
