package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

func sortRecords(records []models.AuditRecord) []models.AuditRecord {
	sorted := make([]models.AuditRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// groupRecords partitions sorted records by key and returns the keys in ascending order.
func groupRecords(records []models.AuditRecord, key func(models.AuditRecord) (string, bool)) ([]string, map[string][]models.AuditRecord) {
	groups := make(map[string][]models.AuditRecord)
	for _, r := range records {
		k, ok := key(r)
		if !ok {
			continue
		}
		groups[k] = append(groups[k], r)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, groups
}

// densestWindow returns the start index and size of the largest run of records whose
// timestamps fit within window. Ties keep the earliest run.
func densestWindow(records []models.AuditRecord, window time.Duration) (int, int) {
	bestStart, bestSize := 0, 0
	start := 0
	for end := range records {
		for records[end].CreatedAt.Sub(records[start].CreatedAt) > window {
			start++
		}
		if size := end - start + 1; size > bestSize {
			bestStart, bestSize = start, size
		}
	}
	return bestStart, bestSize
}

func (d *Detector) rapidChanges(records []models.AuditRecord) []models.Alert {
	keys, groups := groupRecords(records, func(r models.AuditRecord) (string, bool) {
		return fmt.Sprintf("%020d|%s", r.EntityID, r.FieldName), true
	})
	alerts := make([]models.Alert, 0)
	for _, key := range keys {
		group := groups[key]
		start, size := densestWindow(group, d.cfg.RapidWindow)
		if size < d.cfg.RapidMinChanges {
			continue
		}
		cluster := group[start : start+size]
		first := cluster[0]
		severity := models.SeverityMedium
		switch {
		case size >= d.cfg.RapidCriticalAt:
			severity = models.SeverityCritical
		case size >= d.cfg.RapidHighAt:
			severity = models.SeverityHigh
		}
		alerts = append(alerts, d.newAlert(models.AlertTypeRapidChange, severity, cluster,
			fmt.Sprintf("%s of issue %d changed %d times within %s", first.FieldName, first.EntityID, size, d.cfg.RapidWindow),
			models.JSONMap{
				"entityId":      first.EntityID,
				"fieldName":     first.FieldName,
				"count":         size,
				"windowSeconds": int64(d.cfg.RapidWindow / time.Second),
			}))
	}
	return alerts
}

// isOffHours reports whether t falls outside business hours in the configured timezone.
// A start hour after the end hour describes business hours spanning midnight.
func (d *Detector) isOffHours(t time.Time) bool {
	local := t.In(d.cfg.Location)
	if d.cfg.WeekendsAreOffHours && (local.Weekday() == time.Saturday || local.Weekday() == time.Sunday) {
		return true
	}
	start, end, hour := d.cfg.BusinessStartHour, d.cfg.BusinessEndHour, local.Hour()
	switch {
	case start == end:
		return false
	case start < end:
		return hour < start || hour >= end
	default:
		return hour >= end && hour < start
	}
}

func (d *Detector) offHoursBulkEdits(records []models.AuditRecord) []models.Alert {
	keys, groups := groupRecords(records, func(r models.AuditRecord) (string, bool) {
		if r.ActorKind == models.ActorKindSystem && !d.cfg.OffHoursIncludeSystem {
			return "", false
		}
		if !d.isOffHours(r.CreatedAt) {
			return "", false
		}
		return r.Actor().Key(), true
	})
	alerts := make([]models.Alert, 0)
	for _, key := range keys {
		group := groups[key]
		start, size := densestWindow(group, d.cfg.OffHoursWindow)
		if size < d.cfg.OffHoursMinChanges {
			continue
		}
		cluster := group[start : start+size]
		severity := models.SeverityHigh
		if size >= 2*d.cfg.OffHoursMinChanges {
			severity = models.SeverityCritical
		}
		alerts = append(alerts, d.newAlert(models.AlertTypeOffHoursBulkEdit, severity, cluster,
			fmt.Sprintf("%s made %d changes outside business hours within %s", key, size, d.cfg.OffHoursWindow),
			models.JSONMap{
				"actor":         key,
				"count":         size,
				"windowSeconds": int64(d.cfg.OffHoursWindow / time.Second),
				"timezone":      d.cfg.Location.String(),
			}))
	}
	return alerts
}

func (d *Detector) matchFingerprint(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, fp := range d.cfg.AgentFingerprints {
		if strings.Contains(ua, fp) {
			return fp
		}
	}
	return ""
}

// longestBurst returns the longest run of consecutive records spaced less than maxGap apart.
func longestBurst(records []models.AuditRecord, maxGap time.Duration) (int, int) {
	if len(records) == 0 {
		return 0, 0
	}
	bestStart, bestSize := 0, 1
	start := 0
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.Sub(records[i-1].CreatedAt) >= maxGap {
			start = i
		}
		if size := i - start + 1; size > bestSize {
			bestStart, bestSize = start, size
		}
	}
	return bestStart, bestSize
}

func (d *Detector) automatedAgents(records []models.AuditRecord) []models.Alert {
	keys, groups := groupRecords(records, func(r models.AuditRecord) (string, bool) {
		ua, ip := deref(r.UserAgent), deref(r.IPAddress)
		if ua == "" && ip == "" {
			return "", false
		}
		return ua + "|" + ip, true
	})
	alerts := make([]models.Alert, 0)
	for _, key := range keys {
		group := groups[key]
		ua, ip := deref(group[0].UserAgent), deref(group[0].IPAddress)
		start, size := longestBurst(group, d.cfg.AgentMaxInterval)
		fingerprint := d.matchFingerprint(ua)

		var evidence []models.AuditRecord
		signals := make([]string, 0, 2)
		if size >= d.cfg.AgentMinBurst {
			evidence = group[start : start+size]
			signals = append(signals, "burst")
		}
		if fingerprint != "" {
			if evidence == nil {
				evidence = group
			}
			signals = append(signals, "fingerprint")
		}
		if evidence == nil {
			continue
		}
		data := models.JSONMap{
			"userAgent": ua,
			"ipAddress": ip,
			"signals":   signals,
			"count":     len(evidence),
		}
		if fingerprint != "" {
			data["fingerprint"] = fingerprint
		}
		if size >= d.cfg.AgentMinBurst {
			data["burstSize"] = size
			data["maxIntervalMs"] = d.cfg.AgentMaxInterval.Milliseconds()
		}
		alerts = append(alerts, d.newAlert(models.AlertTypeAutomatedAgent, models.SeverityCritical, evidence,
			fmt.Sprintf("automated client %q from %s issued %d writes (%s)", ua, displayIP(ip), len(evidence), strings.Join(signals, ", ")),
			data))
	}
	return alerts
}

func (d *Detector) newAlert(alertType models.AlertType, severity models.Severity, cluster []models.AuditRecord, description string, data models.JSONMap) models.Alert {
	entityIDs := uniqueEntityIDs(cluster)
	auditIDs := make([]int64, 0, len(cluster))
	actors := make(map[string]struct{})
	for _, r := range cluster {
		auditIDs = append(auditIDs, r.ID)
		actors[r.Actor().Key()] = struct{}{}
	}
	actorKeys := make([]string, 0, len(actors))
	for k := range actors {
		actorKeys = append(actorKeys, k)
	}
	sort.Strings(actorKeys)

	anchor := cluster[0].CreatedAt.UTC()
	data["actors"] = actorKeys
	data["firstAt"] = anchor.Format(time.RFC3339Nano)
	data["lastAt"] = cluster[len(cluster)-1].CreatedAt.UTC().Format(time.RFC3339Nano)

	alert := models.Alert{
		AlertType:        alertType,
		Severity:         severity,
		Description:      description,
		RelatedEntityIDs: pq.Int64Array(entityIDs),
		AuditIDs:         pq.Int64Array(auditIDs),
		DetectionData:    data,
		DedupKey:         dedupKey(alertType, entityIDs, anchor.Truncate(d.cfg.DedupBucket)),
		Status:           models.AlertStatusOpen,
	}
	if len(actorKeys) == 1 {
		actor := actorKeys[0]
		alert.RelatedActorID = &actor
	}
	return alert
}

func uniqueEntityIDs(records []models.AuditRecord) []int64 {
	seen := make(map[int64]struct{}, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.EntityID]; ok {
			continue
		}
		seen[r.EntityID] = struct{}{}
		ids = append(ids, r.EntityID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func dedupKey(alertType models.AlertType, entityIDs []int64, bucket time.Time) string {
	parts := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s|%s|%s", alertType, strings.Join(parts, ","), bucket.Format(time.RFC3339))
}

func displayIP(ip string) string {
	if ip == "" {
		return "unknown address"
	}
	return ip
}
