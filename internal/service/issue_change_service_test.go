package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

var changeEpoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type changeHarness struct {
	svc    *IssueChangeService
	issues *memIssueStore
	audit  *memAuditStore
	rules  *memRuleStore
	tx     *memTxRunner
	clock  *testClock
	cache  *memCacheRepo
}

func newChangeHarness(issues ...models.Issue) *changeHarness {
	h := &changeHarness{
		issues: newMemIssueStore(issues...),
		audit:  &memAuditStore{},
		rules:  &memRuleStore{},
		clock:  newTestClock(changeEpoch),
		cache:  newMemCacheRepo(),
	}
	h.tx = &memTxRunner{issues: h.issues, audit: h.audit, rules: h.rules}
	gate := NewChangeGate(NewRuleEngine(nil, nil), nil, nil)
	cache := NewCacheService(h.cache, nil, time.Minute, nil, true)
	h.svc = NewIssueChangeService(h.tx, gate, nil, nil,
		WithIssueChangeClock(h.clock.Now),
		WithIssueChangeCache(cache),
	)
	return h
}

func openIssue(id int64) models.Issue {
	end := changeEpoch.Add(72 * time.Hour)
	return models.Issue{ID: id, Title: "Will it rain?", Status: "OPEN", EndDate: &end}
}

func endDateChange(t time.Time) dto.ChangeIssueFieldRequest {
	value := t.UTC().Format(time.RFC3339)
	return dto.ChangeIssueFieldRequest{FieldName: models.FieldEndDate, NewValue: &value}
}

var (
	testAdmin = models.AdminActor("1", "Ops Admin")
	testUser  = models.UserActor("77", "trader")
)

func TestChangeFieldRecordsAcceptedChange(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	before, _ := h.issues.get(124).FieldValue(models.FieldEndDate)
	target := changeEpoch.Add(96 * time.Hour)

	resp, err := h.svc.ChangeField(context.Background(), 124, endDateChange(target), testAdmin,
		dto.RequestMeta{IPAddress: "10.0.0.1", UserAgent: "admin-ui", RequestID: "req-1"})
	require.NoError(t, err)

	require.NotNil(t, resp.Audit)
	assert.Equal(t, int64(124), resp.Audit.EntityID)
	assert.Equal(t, models.FieldEndDate, resp.Audit.FieldName)
	assert.Equal(t, before, resp.Audit.OldValue)
	assert.Equal(t, target.Format(models.TimestampLayout), *resp.Audit.NewValue)
	assert.Equal(t, models.ValidationStatusValid, resp.Audit.ValidationStatus)
	assert.Equal(t, models.ChangeSourceAPI, resp.Audit.ChangeSource)
	assert.Equal(t, "req-1", resp.Audit.Metadata["requestId"])

	records := h.audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, *resp.Audit, records[0])
	stored := h.issues.get(124)
	require.NotNil(t, stored.EndDate)
	assert.True(t, stored.EndDate.Equal(target))
	assert.Equal(t, 1, h.tx.commits)
}

func TestChangeFieldRejectedLeavesFieldUnchanged(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	rule := h.rules.add(models.ChangeRule{
		RuleName:        "admins-only",
		RuleType:        models.RuleTypeActorAllowlist,
		FieldName:       strPtr(models.FieldEndDate),
		RestrictionData: models.JSONMap{"allowedActors": []interface{}{"admin"}},
	})
	original := h.issues.get(124)

	_, err := h.svc.ChangeField(context.Background(), 124, endDateChange(changeEpoch.Add(100*time.Hour)), testUser, dto.RequestMeta{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrChangeRejected.Code, appErr.Code)
	assert.Equal(t, rule.ID, appErr.Details["ruleId"])
	assert.Contains(t, appErr.Message, "admins-only")

	assert.Equal(t, original, h.issues.get(124))
	records := h.audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.ValidationStatusRejected, records[0].ValidationStatus)
	assert.Equal(t, rule.ID, records[0].Metadata["violatedRuleId"])
	assert.Equal(t, 1, h.tx.commits)
}

func TestChangeFieldMaxFrequencyBoundary(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	h.rules.add(models.ChangeRule{
		RuleName:        "end-date-frequency",
		RuleType:        models.RuleTypeMaxFrequency,
		FieldName:       strPtr(models.FieldEndDate),
		RestrictionData: models.JSONMap{"maxChangesPerWindow": 3, "windowMinutes": 60},
	})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		resp, err := h.svc.ChangeField(ctx, 124, endDateChange(changeEpoch.Add(time.Duration(100+i)*time.Hour)), testAdmin, dto.RequestMeta{})
		require.NoError(t, err, "change %d", i)
		assert.True(t, resp.Decision.Allowed)
		h.clock.Advance(time.Minute)
	}

	_, err := h.svc.ChangeField(ctx, 124, endDateChange(changeEpoch.Add(200*time.Hour)), testAdmin, dto.RequestMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrChangeRejected))
	stored := h.issues.get(124)
	assert.True(t, stored.EndDate.Equal(changeEpoch.Add(103*time.Hour)))

	h.clock.Advance(61 * time.Minute)
	resp, err := h.svc.ChangeField(ctx, 124, endDateChange(changeEpoch.Add(300*time.Hour)), testAdmin, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.ValidationStatusValid, resp.Decision.ValidationStatus)
	assert.Len(t, h.audit.all(), 5)
}

func TestChangeFieldSoftRuleFlagsButApplies(t *testing.T) {
	h := newChangeHarness(openIssue(9))
	h.rules.add(models.ChangeRule{
		RuleName:        "watch-users",
		RuleType:        models.RuleTypeActorAllowlist,
		RestrictionData: models.JSONMap{"allowedActors": []interface{}{"admin", "system:SCHEDULED_JOB"}},
		Enforcement:     models.EnforcementSoft,
	})
	target := changeEpoch.Add(120 * time.Hour)

	resp, err := h.svc.ChangeField(context.Background(), 9, endDateChange(target), testUser, dto.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, resp.Decision.Allowed)
	assert.Equal(t, models.ValidationStatusFlagged, resp.Audit.ValidationStatus)
	assert.True(t, h.issues.get(9).EndDate.Equal(target))
}

func TestChangeFieldLockedAfterResolution(t *testing.T) {
	issue := openIssue(5)
	issue.Status = "resolved"
	h := newChangeHarness(issue)
	h.rules.add(models.ChangeRule{
		RuleName:        "lock-after-resolution",
		RuleType:        models.RuleTypeFieldLockAfterStatus,
		FieldName:       strPtr(models.FieldEndDate),
		RestrictionData: models.JSONMap{"lockedStatuses": []interface{}{"RESOLVED", "CANCELLED"}},
	})

	_, err := h.svc.ChangeField(context.Background(), 5, endDateChange(changeEpoch.Add(10*time.Hour)), testAdmin, dto.RequestMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrChangeRejected))
	assert.Equal(t, issue, h.issues.get(5))
}

func TestChangeFieldStorageFailureRollsBack(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	h.issues.updateErr = errors.New("connection reset")
	original := h.issues.get(124)

	_, err := h.svc.ChangeField(context.Background(), 124, endDateChange(changeEpoch.Add(99*time.Hour)), testAdmin, dto.RequestMeta{})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStorageUnavailable.Code, appErr.Code)
	assert.True(t, appErr.Retryable)
	assert.Empty(t, h.audit.all())
	assert.Equal(t, original, h.issues.get(124))
	assert.Equal(t, 1, h.tx.rollbacks)
}

func TestChangeFieldAppendFailureLeavesIssueUntouched(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	h.audit.appendErr = errors.New("audit table unavailable")
	original := h.issues.get(124)

	_, err := h.svc.ChangeField(context.Background(), 124, endDateChange(changeEpoch.Add(99*time.Hour)), testAdmin, dto.RequestMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStorageUnavailable))
	assert.Equal(t, original, h.issues.get(124))
}

func TestChangeFieldRuleLoadFailureRejectsWithStorageError(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	h.rules.err = errors.New("rules table locked")

	_, err := h.svc.ChangeField(context.Background(), 124, endDateChange(changeEpoch.Add(99*time.Hour)), testAdmin, dto.RequestMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStorageUnavailable))
	assert.Empty(t, h.audit.all())
}

func TestChangeFieldValidation(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	ctx := context.Background()
	current, _ := h.issues.get(124).FieldValue(models.FieldEndDate)

	t.Run("unchanged value", func(t *testing.T) {
		req := dto.ChangeIssueFieldRequest{FieldName: models.FieldEndDate, NewValue: current}
		_, err := h.svc.ChangeField(ctx, 124, req, testAdmin, dto.RequestMeta{})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})
	t.Run("bad timestamp", func(t *testing.T) {
		req := dto.ChangeIssueFieldRequest{FieldName: models.FieldEndDate, NewValue: strPtr("tomorrow")}
		_, err := h.svc.ChangeField(ctx, 124, req, testAdmin, dto.RequestMeta{})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})
	t.Run("untracked field", func(t *testing.T) {
		req := dto.ChangeIssueFieldRequest{FieldName: "title", NewValue: strPtr("x")}
		_, err := h.svc.ChangeField(ctx, 124, req, testAdmin, dto.RequestMeta{})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})
	t.Run("status cannot be cleared", func(t *testing.T) {
		req := dto.ChangeIssueFieldRequest{FieldName: models.FieldStatus}
		_, err := h.svc.ChangeField(ctx, 124, req, testAdmin, dto.RequestMeta{})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})
	t.Run("unknown issue", func(t *testing.T) {
		_, err := h.svc.ChangeField(ctx, 999, endDateChange(changeEpoch), testAdmin, dto.RequestMeta{})
		assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	})
	t.Run("unresolved actor", func(t *testing.T) {
		_, err := h.svc.ChangeField(ctx, 124, endDateChange(changeEpoch), models.Actor{}, dto.RequestMeta{})
		assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	})

	assert.Empty(t, h.audit.all())
}

func TestChangeFieldClearingEndDateIsDelete(t *testing.T) {
	h := newChangeHarness(openIssue(3))

	resp, err := h.svc.ChangeField(context.Background(), 3, dto.ChangeIssueFieldRequest{FieldName: models.FieldEndDate}, testAdmin, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionDelete, resp.Audit.Action)
	assert.Nil(t, resp.Audit.NewValue)
	assert.Nil(t, h.issues.get(3).EndDate)
}

func TestChangeFieldSystemActorDefaultsToScheduledJob(t *testing.T) {
	h := newChangeHarness(openIssue(4))

	req := dto.ChangeIssueFieldRequest{FieldName: models.FieldStatus, NewValue: strPtr("CLOSED")}
	resp, err := h.svc.ChangeField(context.Background(), 4, req, models.SystemActor("SCHEDULED_JOB"), dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeSourceScheduledJob, resp.Audit.ChangeSource)
	assert.Equal(t, "CLOSED", h.issues.get(4).Status)
}

func TestChangeFieldInvalidatesStatsCache(t *testing.T) {
	h := newChangeHarness(openIssue(124))
	require.NoError(t, h.cache.Set(context.Background(), auditStatsCachePrefix+"24h", map[string]int{"total": 1}, time.Minute))

	_, err := h.svc.ChangeField(context.Background(), 124, endDateChange(changeEpoch.Add(99*time.Hour)), testAdmin, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0, h.cache.size())
}
