package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("RACEDAY_ADDR", "")
	t.Setenv("PAYMENTS_ENABLED", "")
	t.Setenv("HOLD_SWEEP_INTERVAL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("HTTP_IDLE_TIMEOUT", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.PaymentsEnabled)
	assert.Zero(t, cfg.HoldSweepInterval)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Zero(t, cfg.HTTPIdleTimeout)
	assert.NotEmpty(t, cfg.JWTSigningKey)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PAYMENTS_ENABLED", "true")
	t.Setenv("HOLD_SWEEP_INTERVAL", "1m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("HTTP_WRITE_TIMEOUT", "45s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.PaymentsEnabled)
	assert.Equal(t, 45*time.Second, cfg.HTTPWriteTimeout)
	assert.Zero(t, cfg.HTTPReadTimeout)
	assert.Equal(t, time.Minute, cfg.HoldSweepInterval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("HOLD_SWEEP_INTERVAL", "soon")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "HOLD_SWEEP_INTERVAL")
}

func TestFromEnvRejectsBadHTTPTimeout(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "30")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "HTTP_READ_TIMEOUT")
}
