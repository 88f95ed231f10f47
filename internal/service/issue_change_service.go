package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

// IssueChangeService is the audited mutation path for tracked issue fields.
type IssueChangeService struct {
	tx        TxRunner
	gate      *ChangeGate
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// IssueChangeOption customises the service.
type IssueChangeOption func(*IssueChangeService)

// WithIssueChangeClock overrides the clock used to timestamp changes.
func WithIssueChangeClock(now func() time.Time) IssueChangeOption {
	return func(s *IssueChangeService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIssueChangeCache invalidates cached audit summaries after every recorded change.
func WithIssueChangeCache(cache *CacheService) IssueChangeOption {
	return func(s *IssueChangeService) {
		s.cache = cache
	}
}

// NewIssueChangeService constructs the service.
func NewIssueChangeService(tx TxRunner, gate *ChangeGate, validate *validator.Validate, logger *zap.Logger, opts ...IssueChangeOption) *IssueChangeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &IssueChangeService{
		tx:        tx,
		gate:      gate,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ChangeField locks the issue, evaluates the change rules, records the outcome and applies the
// change when allowed, all in one transaction. A rejected change is still recorded and committed
// while the field keeps its value; the caller then receives a CHANGE_REJECTED error.
func (s *IssueChangeService) ChangeField(ctx context.Context, issueID int64, req dto.ChangeIssueFieldRequest, actor models.Actor, meta dto.RequestMeta) (*dto.ChangeIssueFieldResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change payload")
	}
	if err := actor.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "actor is not resolved")
	}
	newValue, err := normaliseFieldValue(req.FieldName, req.NewValue)
	if err != nil {
		return nil, err
	}

	changeSource := strings.TrimSpace(req.ChangeSource)
	if changeSource == "" {
		changeSource = models.ChangeSourceAPI
		if actor.Kind == models.ActorKindSystem {
			changeSource = models.ChangeSourceScheduledJob
		}
	}
	at := s.now().UTC()

	var (
		result   dto.ChangeIssueFieldResponse
		rejected *appErrors.Error
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ChangeStores) error {
		issue, err := stores.Issues.GetForUpdate(ctx, issueID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "issue not found")
			}
			return appErrors.StorageUnavailable(err, "failed to load issue")
		}
		oldValue, _ := issue.FieldValue(req.FieldName)
		if sameValue(oldValue, newValue) {
			return appErrors.Clone(appErrors.ErrValidation, "new value equals the current value")
		}

		change := ChangeRequest{
			EntityID:     issueID,
			FieldName:    req.FieldName,
			OldValue:     oldValue,
			NewValue:     newValue,
			Actor:        actor,
			Timestamp:    at,
			EntityStatus: issue.Status,
		}
		input := models.AuditRecordInput{
			EntityID:     issueID,
			FieldName:    req.FieldName,
			OldValue:     oldValue,
			NewValue:     newValue,
			Action:       actionFor(oldValue, newValue),
			Actor:        actor,
			ChangeSource: changeSource,
			IPAddress:    optionalString(meta.IPAddress),
			UserAgent:    optionalString(meta.UserAgent),
			Metadata:     requestMetadata(req, meta),
			CreatedAt:    at,
		}
		decision, record, err := s.gate.EvaluateAndRecord(ctx, stores, change, input)
		if err != nil {
			return appErrors.StorageUnavailable(err, "failed to record change")
		}
		result.Audit = record
		result.Decision = decision

		if !decision.Allowed {
			var ruleID int64
			if decision.ViolatedRuleID != nil {
				ruleID = *decision.ViolatedRuleID
			}
			rejected = appErrors.ChangeRejected(ruleID, decision.ViolatedRuleName, decision.Reason)
			return nil
		}

		if err := stores.Issues.UpdateField(ctx, issueID, req.FieldName, newValue, at); err != nil {
			return appErrors.StorageUnavailable(err, "failed to update issue")
		}
		applyFieldValue(issue, req.FieldName, newValue, at)
		result.Issue = issue
		return nil
	})
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrInternal.Code {
			appErr = appErrors.StorageUnavailable(err, "issue change failed")
		}
		if appErr.Code == appErrors.ErrStorageUnavailable.Code {
			s.logger.Error("issue change rolled back",
				zap.Int64("entity_id", issueID),
				zap.String("field_name", req.FieldName),
				zap.String("actor", actor.Key()),
				zap.Error(err),
			)
		}
		return nil, appErr
	}

	s.cache.Invalidate(ctx, auditStatsCachePattern)
	if rejected != nil {
		return nil, rejected
	}
	s.logger.Info("issue field changed",
		zap.Int64("entity_id", issueID),
		zap.String("field_name", req.FieldName),
		zap.String("actor", actor.Key()),
		zap.Int64("audit_id", result.Audit.ID),
		zap.String("validation_status", string(result.Decision.ValidationStatus)),
	)
	return &result, nil
}

// normaliseFieldValue canonicalises timestamps to UTC RFC3339 so audit values compare textually.
func normaliseFieldValue(field string, value *string) (*string, error) {
	if value == nil {
		if field == models.FieldStatus {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status cannot be cleared")
		}
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if models.IsTimestampField(field) {
		parsed, err := time.Parse(time.RFC3339Nano, trimmed)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, field+" must be an RFC3339 timestamp")
		}
		canonical := parsed.UTC().Format(models.TimestampLayout)
		return &canonical, nil
	}
	if trimmed == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" cannot be empty")
	}
	return &trimmed, nil
}

func applyFieldValue(issue *models.Issue, field string, value *string, at time.Time) {
	switch field {
	case models.FieldEndDate, models.FieldBettingEndDate:
		var ts *time.Time
		if value != nil {
			if parsed, err := time.Parse(time.RFC3339Nano, *value); err == nil {
				ts = &parsed
			}
		}
		if field == models.FieldEndDate {
			issue.EndDate = ts
		} else {
			issue.BettingEndDate = ts
		}
	case models.FieldStatus:
		if value != nil {
			issue.Status = *value
		}
	}
	issue.UpdatedAt = at
}

func actionFor(oldValue, newValue *string) models.AuditAction {
	switch {
	case oldValue == nil && newValue != nil:
		return models.AuditActionCreate
	case oldValue != nil && newValue == nil:
		return models.AuditActionDelete
	default:
		return models.AuditActionUpdate
	}
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func requestMetadata(req dto.ChangeIssueFieldRequest, meta dto.RequestMeta) models.JSONMap {
	metadata := models.JSONMap{}
	if req.Reason != "" {
		metadata["changeReason"] = req.Reason
	}
	if meta.RequestID != "" {
		metadata["requestId"] = meta.RequestID
	}
	return metadata
}
