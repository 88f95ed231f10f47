package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/issue-audit-api/internal/models"
)

func TestMetricsServiceRegistersCacheHistograms(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, 3*time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveCacheWrite(2 * time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	samples := map[string]uint64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if h := metric.GetHistogram(); h != nil {
				samples[family.GetName()] += h.GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(2), samples["cache_latency_seconds"])
	assert.Equal(t, uint64(1), samples["cache_write_seconds"])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
}

func TestMetricsServiceDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordAlert(models.AlertTypeRapidChange, models.SeverityHigh, true)
	m.RecordAlert(models.AlertTypeRapidChange, models.SeverityHigh, false)
	m.RecordAuditRecord(models.FieldEndDate, models.ValidationStatusRejected)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.alertsCreated.WithLabelValues(string(models.AlertTypeRapidChange), string(models.SeverityHigh))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.alertsDeduplicated.WithLabelValues(string(models.AlertTypeRapidChange))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.auditRecords.WithLabelValues(models.FieldEndDate, string(models.ValidationStatusRejected))))
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveCacheWrite(time.Millisecond)
		m.RecordAlertResolved()
	})
}
