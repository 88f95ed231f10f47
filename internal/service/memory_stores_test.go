package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/models"
	appErrors "github.com/noah-isme/issue-audit-api/pkg/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func strPtr(v string) *string {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

type memIssueStore struct {
	mu        sync.Mutex
	issues    map[int64]models.Issue
	getErr    map[int64]error
	updateErr error
}

func newMemIssueStore(issues ...models.Issue) *memIssueStore {
	store := &memIssueStore{issues: make(map[int64]models.Issue), getErr: make(map[int64]error)}
	for _, issue := range issues {
		store.issues[issue.ID] = issue
	}
	return store
}

func (s *memIssueStore) GetByID(ctx context.Context, id int64) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[id]; err != nil {
		return nil, err
	}
	issue, ok := s.issues[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &issue, nil
}

func (s *memIssueStore) GetForUpdate(ctx context.Context, id int64) (*models.Issue, error) {
	return s.GetByID(ctx, id)
}

func (s *memIssueStore) UpdateField(ctx context.Context, id int64, field string, value *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	issue, ok := s.issues[id]
	if !ok {
		return sql.ErrNoRows
	}
	applyFieldValue(&issue, field, value, at)
	s.issues[id] = issue
	return nil
}

func (s *memIssueStore) get(id int64) models.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issues[id]
}

func (s *memIssueStore) snapshot() map[int64]models.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[int64]models.Issue, len(s.issues))
	for id, issue := range s.issues {
		copied[id] = issue
	}
	return copied
}

func (s *memIssueStore) restore(snapshot map[int64]models.Issue) {
	s.mu.Lock()
	s.issues = snapshot
	s.mu.Unlock()
}

type memAuditStore struct {
	mu        sync.Mutex
	records   []models.AuditRecord
	nextID    int64
	appendErr error
	readErr   error
}

func (s *memAuditStore) Append(ctx context.Context, input models.AuditRecordInput) (*models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	s.nextID++
	record := models.AuditRecord{
		ID:               s.nextID,
		EntityID:         input.EntityID,
		FieldName:        input.FieldName,
		OldValue:         input.OldValue,
		NewValue:         input.NewValue,
		Action:           input.Action,
		ActorKind:        input.Actor.Kind,
		ActorID:          input.Actor.ID,
		ActorDisplay:     input.Actor.DisplayName,
		ChangeSource:     input.ChangeSource,
		IPAddress:        input.IPAddress,
		UserAgent:        input.UserAgent,
		ValidationStatus: input.ValidationStatus,
		Metadata:         input.Metadata,
		CreatedAt:        input.CreatedAt,
	}
	if record.Action == "" {
		record.Action = models.AuditActionUpdate
	}
	s.records = append(s.records, record)
	return &record, nil
}

func (s *memAuditStore) CountNonRejected(ctx context.Context, entityID int64, field string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, s.readErr
	}
	count := 0
	for _, r := range s.records {
		if r.EntityID != entityID || r.FieldName != field || r.ValidationStatus == models.ValidationStatusRejected {
			continue
		}
		if r.CreatedAt.Before(from) || r.CreatedAt.After(to) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *memAuditStore) ListRange(ctx context.Context, from, to time.Time) ([]models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([]models.AuditRecord, 0)
	for _, r := range s.records {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return sortRecords(out), nil
}

func (s *memAuditStore) GetByID(ctx context.Context, id int64) (*models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			record := r
			return &record, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memAuditStore) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, 0, s.readErr
	}
	matched := make([]models.AuditRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if filter.EntityID != nil && r.EntityID != *filter.EntityID {
			continue
		}
		if filter.FieldName != "" && r.FieldName != filter.FieldName {
			continue
		}
		if filter.ValidationStatus != "" && r.ValidationStatus != filter.ValidationStatus {
			continue
		}
		matched = append(matched, r)
	}
	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []models.AuditRecord{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *memAuditStore) ListRecent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	records, _, err := s.Query(ctx, models.AuditFilter{Page: 1, PageSize: limit})
	return records, err
}

func (s *memAuditStore) inRange(from, to time.Time) []models.AuditRecord {
	out := make([]models.AuditRecord, 0)
	for _, r := range s.records {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out
}

func (s *memAuditStore) CountBy(ctx context.Context, column string, from, to time.Time) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	counts := make(map[string]int)
	for _, r := range s.inRange(from, to) {
		switch column {
		case "action":
			counts[string(r.Action)]++
		case "field_name":
			counts[r.FieldName]++
		case "validation_status":
			counts[string(r.ValidationStatus)]++
		}
	}
	return counts, nil
}

func (s *memAuditStore) DailyActivity(ctx context.Context, from, to time.Time) ([]models.DailyActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay := make(map[time.Time]int)
	for _, r := range s.inRange(from, to) {
		byDay[r.CreatedAt.UTC().Truncate(24*time.Hour)]++
	}
	days := make([]models.DailyActivity, 0, len(byDay))
	for day, count := range byDay {
		days = append(days, models.DailyActivity{Day: day, Count: count})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })
	return days, nil
}

func (s *memAuditStore) TopActors(ctx context.Context, from, to time.Time, limit int) ([]models.ActorActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byActor := make(map[models.Actor]int)
	for _, r := range s.inRange(from, to) {
		byActor[models.Actor{Kind: r.ActorKind, ID: r.ActorID}]++
	}
	actors := make([]models.ActorActivity, 0, len(byActor))
	for actor, count := range byActor {
		actors = append(actors, models.ActorActivity{ActorKind: actor.Kind, ActorID: actor.ID, Count: count})
	}
	sort.Slice(actors, func(i, j int) bool {
		if actors[i].Count != actors[j].Count {
			return actors[i].Count > actors[j].Count
		}
		return actors[i].ActorID < actors[j].ActorID
	})
	if len(actors) > limit {
		actors = actors[:limit]
	}
	return actors, nil
}

func (s *memAuditStore) all() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *memAuditStore) truncate(n int) {
	s.mu.Lock()
	s.records = s.records[:n]
	s.mu.Unlock()
}

// seed appends a finished record directly, bypassing the change path.
func (s *memAuditStore) seed(r models.AuditRecord) {
	s.mu.Lock()
	s.nextID++
	r.ID = s.nextID
	if r.ValidationStatus == "" {
		r.ValidationStatus = models.ValidationStatusValid
	}
	if r.Action == "" {
		r.Action = models.AuditActionUpdate
	}
	s.records = append(s.records, r)
	s.mu.Unlock()
}

type memRuleStore struct {
	mu        sync.Mutex
	rules     []models.ChangeRule
	nextID    int64
	err       error
	createErr error
}

func (s *memRuleStore) ListActiveForField(ctx context.Context, field string) ([]models.ChangeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.ChangeRule, 0)
	for _, r := range s.rules {
		if r.IsActive && r.AppliesTo(field) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memRuleStore) List(ctx context.Context, filter models.ChangeRuleFilter) ([]models.ChangeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChangeRule, 0)
	for _, r := range s.rules {
		if filter.RuleType != "" && r.RuleType != filter.RuleType {
			continue
		}
		if filter.Active != nil && r.IsActive != *filter.Active {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *memRuleStore) GetByID(ctx context.Context, id int64) (*models.ChangeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			rule := r
			return &rule, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memRuleStore) Create(ctx context.Context, rule *models.ChangeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	rule.ID = s.nextID
	if rule.Enforcement == "" {
		rule.Enforcement = models.EnforcementHard
	}
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *memRuleStore) Update(ctx context.Context, rule *models.ChangeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			s.rules[i] = *rule
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *memRuleStore) SetActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].IsActive = active
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *memRuleStore) add(rule models.ChangeRule) models.ChangeRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rule.ID = s.nextID
	rule.IsActive = true
	if rule.Enforcement == "" {
		rule.Enforcement = models.EnforcementHard
	}
	s.rules = append(s.rules, rule)
	return rule
}

// memTxRunner restores the issue and audit stores when fn fails.
type memTxRunner struct {
	issues    *memIssueStore
	audit     *memAuditStore
	rules     *memRuleStore
	commits   int
	rollbacks int
}

func (m *memTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ChangeStores) error) error {
	issues := m.issues.snapshot()
	auditLen := len(m.audit.all())
	if err := fn(ctx, ChangeStores{Issues: m.issues, Audit: m.audit, Rules: m.rules}); err != nil {
		m.issues.restore(issues)
		m.audit.truncate(auditLen)
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

type memAlertRepo struct {
	mu        sync.Mutex
	alerts    []models.Alert
	nextID    int64
	insertErr error
}

func (r *memAlertRepo) InsertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return false, r.insertErr
	}
	for _, existing := range r.alerts {
		if existing.Status != models.AlertStatusOpen {
			continue
		}
		if existing.DedupKey == alert.DedupKey {
			return false, nil
		}
		if existing.AlertType == alert.AlertType && sharesAuditID(existing.AuditIDs, alert.AuditIDs) {
			return false, nil
		}
	}
	r.nextID++
	alert.ID = r.nextID
	r.alerts = append(r.alerts, *alert)
	return true, nil
}

func sharesAuditID(a, b []int64) bool {
	seen := make(map[int64]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}

func (r *memAlertRepo) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.ID == id {
			alert := a
			return &alert, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memAlertRepo) List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Alert, 0)
	for i := len(r.alerts) - 1; i >= 0; i-- {
		a := r.alerts[i]
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.AlertType != "" && a.AlertType != filter.AlertType {
			continue
		}
		out = append(out, a)
	}
	total := len(out)
	if filter.PageSize > 0 && len(out) > filter.PageSize {
		out = out[:filter.PageSize]
	}
	return out, total, nil
}

func (r *memAlertRepo) Resolve(ctx context.Context, id int64, resolvedBy, notes string, at time.Time) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID != id || r.alerts[i].Status != models.AlertStatusOpen {
			continue
		}
		r.alerts[i].Status = models.AlertStatusResolved
		r.alerts[i].ResolvedBy = &resolvedBy
		r.alerts[i].ResolutionNotes = &notes
		r.alerts[i].ResolvedAt = &at
		alert := r.alerts[i]
		return &alert, nil
	}
	return nil, sql.ErrNoRows
}

func (r *memAlertRepo) CountOpenBySeverity(ctx context.Context) ([]models.SeverityCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.Severity]int)
	for _, a := range r.alerts {
		if a.Status == models.AlertStatusOpen {
			counts[a.Severity]++
		}
	}
	out := make([]models.SeverityCount, 0, len(counts))
	for sev, count := range counts {
		out = append(out, models.SeverityCount{Severity: sev, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Severity.Rank() > out[j].Severity.Rank() })
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.AlertEvent
}

func (p *recordingPublisher) Publish(event dto.AlertEvent) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: make(map[string][]byte)}
}

func (c *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memCacheRepo) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
