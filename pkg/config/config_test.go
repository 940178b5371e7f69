package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv populates the minimum viable environment
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EMAIL_SERVER_IP", "192.0.2.10")
	t.Setenv("EMAIL_SERVER_HOSTNAME", "mail.example.org")
	t.Setenv("EMAIL_MX_DOMAIN", "example.org")
	t.Setenv("EXPECTED_IP", "192.0.2.10")
	t.Setenv("EMAIL_SMTP_USERNAME", "probe@example.org")
	t.Setenv("EMAIL_SMTP_PASSWORD", "hunter2")
	t.Setenv("FROM_ADDRESS", "probe@example.org")
	t.Setenv("TO_ADDRESS", "postmaster@example.org")
}

func TestLoadWithRequiredEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.10", cfg.Target.ServerIP)
	assert.Equal(t, "mail.example.org", cfg.Target.Hostname)
	assert.Equal(t, 60*time.Second, cfg.Probing.Interval)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.True(t, cfg.Probing.Categorization)
}

func TestLoadMissingRequiredFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_SMTP_PASSWORD", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_SMTP_PASSWORD")
}

func TestLoadRejectsInvalidIP(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_SERVER_IP", "not-an-ip")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_SERVER_IP")
}

func TestProbeIntervalBounds(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"29", false},
		{"30", true},
		{"3600", true},
		{"3601", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("PROBE_COLLECTION_INTERVAL", tt.value)

			_, err := Load("")
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPortBounds(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"0", false},
		{"1", true},
		{"65535", true},
		{"65536", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("EMAIL_SERVER_SMTP_PORT", tt.value)

			_, err := Load("")
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROBE_COLLECTION_INTERVAL", "120")
	t.Setenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("CIRCUIT_BREAKER_RECOVERY_TIMEOUT", "90")
	t.Setenv("BACKOFF_MULTIPLIER", "1.5")
	t.Setenv("BACKOFF_MAX_FAILURES", "7")
	t.Setenv("ENABLE_ERROR_CATEGORIZATION", "false")
	t.Setenv("RESOURCE_CHECK_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.Probing.Interval)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 90*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 1.5, cfg.Backoff.Multiplier)
	assert.Equal(t, 7, cfg.Backoff.MaxFailures)
	assert.False(t, cfg.Probing.Categorization)
	assert.False(t, cfg.Resources.Enabled)
}

func TestEnvRejectsGarbage(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_SERVER_HTTP_PORT", "eighty")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_SERVER_HTTP_PORT")
}

func TestEnvWinsOverConfigFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("METRICS_EXPORT_PORT", "9200")

	dir := t.TempDir()
	path := filepath.Join(dir, "mailprobe.yaml")
	yaml := "metrics:\n  port: 9100\ntarget:\n  http_port: 8080\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Metrics.Port)
	assert.Equal(t, 8080, cfg.Target.HTTPPort)
}

func TestBackoffBaseFallsBackToInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROBE_COLLECTION_INTERVAL", "45")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.BackoffBase())

	t.Setenv("BACKOFF_BASE_INTERVAL", "30")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.BackoffBase())
}
