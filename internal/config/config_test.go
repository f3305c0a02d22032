package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Setenv("SENSE_EMAIL", "user@example.com")
	t.Setenv("SENSE_PASSWORD", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Poller.RealtimeInterval)
	assert.Equal(t, 5*time.Minute, cfg.Poller.TrendInterval)
	assert.Equal(t, 30*time.Second, cfg.Sense.Timeout)
	assert.Equal(t, 0.12, cfg.Cost.EnergyRate)
	assert.Equal(t, 0.10, cfg.Cost.SolarCredit)
	assert.Equal(t, 30, cfg.Cost.DaysInMonth)
	assert.Equal(t, "medium", cfg.Insights.TokenBudget)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.Cost.TimeOfUse)
}

func TestLoadEnvOverrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("POLLER_REALTIME_INTERVAL", "15s")
	t.Setenv("COST_ENERGY_RATE", "0.31")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MQTT_RETAIN", "false")
	t.Setenv("PROCESSOR_WORKER_COUNT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Poller.RealtimeInterval)
	assert.Equal(t, 0.31, cfg.Cost.EnergyRate)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.MQTT.Retain)
	assert.Equal(t, 2, cfg.Processor.WorkerCount)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing credentials", map[string]string{"SENSE_EMAIL": ""}},
		{"interval outside set", map[string]string{"POLLER_REALTIME_INTERVAL": "45s"}},
		{"negative rate", map[string]string{"COST_ENERGY_RATE": "-0.1"}},
		{"unknown budget", map[string]string{"INSIGHTS_TOKEN_BUDGET": "huge"}},
		{"http provider without endpoint", map[string]string{"INSIGHTS_ENABLED": "true", "INSIGHTS_PROVIDER": "http"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadFileOverlay(t *testing.T) {
	setCredentials(t)

	path := filepath.Join(t.TempDir(), "monitor.yaml")
	content := `
poller:
  realtime_interval: 10s
cost:
  energy_rate: 0.15
  distribution_rate: 0.04
  time_of_use:
    - name: peak
      rate: 0.32
      hours: [[16, 21]]
    - name: off_peak
      rate: 0.08
      hours: [[0, 6], [22, 24]]
    - name: standard
insights:
  enabled: true
  token_budget: low
  features:
    solar_coach: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Poller.RealtimeInterval)
	assert.Equal(t, 0.15, cfg.Cost.EnergyRate)
	assert.Equal(t, "user@example.com", cfg.Sense.Email)
	assert.True(t, cfg.Insights.Enabled)
	assert.Equal(t, "low", cfg.Insights.TokenBudget)
	assert.Equal(t, map[string]bool{"solar_coach": false}, cfg.Insights.Features)

	rates := cfg.Cost.RateConfig()
	require.Len(t, rates.TimeOfUse, 3)
	assert.Equal(t, "peak", rates.TimeOfUse[0].Name)
	require.NotNil(t, rates.TimeOfUse[0].Rate)
	assert.Equal(t, 0.32, *rates.TimeOfUse[0].Rate)
	assert.Len(t, rates.TimeOfUse[1].Hours, 2)
	assert.Equal(t, 22, rates.TimeOfUse[1].Hours[1].Start)
	assert.Nil(t, rates.TimeOfUse[2].Rate)
	assert.Empty(t, rates.TimeOfUse[2].Hours)
}

func TestLoadFileErrors(t *testing.T) {
	setCredentials(t)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cost:\n  time_of_use:\n    - name: x\n      hours: [[20, 18]]\n"), 0o600))
	t.Setenv("CONFIG_FILE", bad)
	_, err = Load()
	assert.Error(t, err)
}
