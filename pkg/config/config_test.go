package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Audit.StatsCacheTTL)
	assert.Equal(t, 3, cfg.Detector.RapidMinChanges)
	assert.Equal(t, time.Hour, cfg.Detector.RapidWindow)
	assert.Equal(t, 8, cfg.Detector.BusinessStartHour)
	assert.Equal(t, 20, cfg.Detector.BusinessEndHour)
	assert.Contains(t, cfg.Detector.AgentFingerprints, "python-requests")
	assert.Equal(t, time.Second, cfg.Consistency.Tolerance)
	assert.Equal(t, "issue-audit:alerts", cfg.Notifications.Channel)
	assert.False(t, cfg.Notifications.Enabled)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ENV", EnvProduction)
	t.Setenv("DETECTOR_RAPID_MIN_CHANGES", "5")
	t.Setenv("DETECTOR_RAPID_WINDOW", "30m")
	t.Setenv("JWT_AUDIENCE", "web, ops ,")
	t.Setenv("CONSISTENCY_CONCURRENCY", "-2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, 5, cfg.Detector.RapidMinChanges)
	assert.Equal(t, 30*time.Minute, cfg.Detector.RapidWindow)
	assert.Equal(t, []string{"web", "ops"}, cfg.JWT.Audience)
	assert.Equal(t, 4, cfg.Consistency.Concurrency)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("1m30s", time.Minute))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,, b "))
}
