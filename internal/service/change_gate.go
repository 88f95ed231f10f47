package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
)

// ChangeGate evaluates a change and records the outcome, whatever it is, as an audit record.
type ChangeGate struct {
	engine  *RuleEngine
	logger  *zap.Logger
	metrics *MetricsService
}

// NewChangeGate constructs the gate.
func NewChangeGate(engine *RuleEngine, logger *zap.Logger, metrics *MetricsService) *ChangeGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeGate{engine: engine, logger: logger, metrics: metrics}
}

// EvaluateAndRecord must run inside the mutation transaction: the record it appends commits
// or rolls back together with the field update.
func (g *ChangeGate) EvaluateAndRecord(ctx context.Context, stores ChangeStores, change ChangeRequest, input models.AuditRecordInput) (*dto.RuleDecision, *models.AuditRecord, error) {
	decision, err := g.engine.Evaluate(ctx, stores.Rules, stores.Audit, change)
	if err != nil {
		return nil, nil, err
	}

	input.ValidationStatus = decision.ValidationStatus
	input.Metadata = decisionMetadata(input.Metadata, decision)
	record, err := stores.Audit.Append(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("append audit record: %w", err)
	}
	g.metrics.RecordAuditRecord(change.FieldName, decision.ValidationStatus)

	if decision.ValidationStatus != models.ValidationStatusValid {
		g.logger.Warn("change rule outcome",
			zap.Int64("entity_id", change.EntityID),
			zap.String("field_name", change.FieldName),
			zap.String("actor", change.Actor.Key()),
			zap.String("validation_status", string(decision.ValidationStatus)),
			zap.String("reason", decision.Reason),
			zap.Int64("audit_id", record.ID),
		)
	}
	return decision, record, nil
}

func decisionMetadata(base models.JSONMap, decision *dto.RuleDecision) models.JSONMap {
	metadata := models.JSONMap{}
	for k, v := range base {
		metadata[k] = v
	}
	if decision.ViolatedRuleID != nil {
		metadata["violatedRuleId"] = *decision.ViolatedRuleID
		metadata["violatedRuleName"] = decision.ViolatedRuleName
	}
	if decision.Reason != "" {
		metadata["reason"] = decision.Reason
	}
	if len(decision.FlaggedRuleIDs) > 0 {
		metadata["flaggedRuleIds"] = decision.FlaggedRuleIDs
	}
	if len(decision.Outcomes) > 0 {
		outcomes := make([]map[string]interface{}, 0, len(decision.Outcomes))
		for _, o := range decision.Outcomes {
			outcomes = append(outcomes, map[string]interface{}{
				"ruleId": o.RuleID,
				"status": o.Status,
			})
		}
		metadata["ruleOutcomes"] = outcomes
	}
	return metadata
}
