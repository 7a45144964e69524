package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/arrival/internal/geo"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/arrival")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.APIPort)
	assert.Equal(t, []string{SinkLog, SinkDB}, cfg.NotificationSinks)
	assert.True(t, cfg.SinkEnabled("DB"))
	assert.False(t, cfg.SinkEnabled(SinkKafka))
	assert.False(t, cfg.WaitlistLookupEnabled)
	assert.False(t, cfg.IsProduction())

	e := cfg.Engine
	assert.InDelta(t, 6.7056, e.Motion.ThresholdMPS, 1e-4)
	assert.InDelta(t, 15.24, e.Proximity.NotifyRadiusMeters, 1e-9)
	assert.Equal(t, 61.0, e.Proximity.DetectedRadiusMeters)
	assert.Equal(t, 15*time.Minute, e.Proximity.NormalInterval)
	assert.Equal(t, 30*time.Second, e.Proximity.NearbyInterval)
	assert.Equal(t, 5*time.Minute, e.Orchestrator.Cooldown)
	assert.Equal(t, time.Hour, e.Orchestrator.SuppressionWindow)
	assert.Equal(t, 10*time.Minute, e.Orchestrator.ActivityWindow)
}

func TestLoadEngine_Overrides(t *testing.T) {
	t.Setenv("DRIVING_SPEED_MPH", "20")
	t.Setenv("NOTIFY_RADIUS_FEET", "40")
	t.Setenv("NEARBY_POLL_INTERVAL", "10s")
	t.Setenv("MAX_JUMP_METERS", "5000")
	t.Setenv("BURST_SAMPLES", "4")
	t.Setenv("RESERVATION_TIMEZONE", "America/New_York")

	e, err := LoadEngine()
	require.NoError(t, err)

	assert.InDelta(t, geo.MPHToMPS(20), e.Motion.ThresholdMPS, 1e-9)
	assert.InDelta(t, geo.FeetToMeters(40), e.Proximity.NotifyRadiusMeters, 1e-9)
	assert.Equal(t, 10*time.Second, e.Proximity.NearbyInterval)
	assert.Equal(t, 5000.0, e.Motion.Limits.MaxJumpMeters)
	assert.Equal(t, 5000.0, e.Proximity.Limits.MaxJumpMeters)
	assert.Equal(t, 4, e.Motion.BurstSamples)
	assert.Equal(t, "America/New_York", e.Orchestrator.Location.String())
}

func TestLoadEngine_RejectsInvertedRadii(t *testing.T) {
	t.Setenv("NOTIFY_RADIUS_FEET", "500")
	_, err := LoadEngine()
	require.Error(t, err)
}

func TestLoadEngine_BadTimezone(t *testing.T) {
	t.Setenv("RESERVATION_TIMEZONE", "Mars/Olympus")
	_, err := LoadEngine()
	require.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "90s")
	t.Setenv("X_LIST", " a, ,b ")
	t.Setenv("X_EMPTY_LIST", " , ")

	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, 90*time.Second, envDuration("X_DUR", time.Second))
	assert.Equal(t, []string{"a", "b"}, envList("X_LIST", nil))
	assert.Equal(t, []string{"z"}, envList("X_EMPTY_LIST", []string{"z"}))
	assert.Equal(t, 1.5, envFloat("X_MISSING", 1.5))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "warn", "json").Info("Hidden")
	assert.Empty(t, buf.String())

	NewLogger(&buf, "debug", "json").Debug("Shown", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"Shown"`)

	buf.Reset()
	NewLogger(&buf, "bogus", "text").Info("Text")
	assert.Contains(t, buf.String(), "msg=Text")
}
