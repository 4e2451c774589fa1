package hold

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raceday/internal/registration/models"
)

func TestComputeExpiresAt(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(DefaultStartedTTL), p.ComputeExpiresAt(now, models.StatusStarted))
	assert.Equal(t, now.Add(DefaultPaymentPendingTTL), p.ComputeExpiresAt(now, models.StatusPaymentPending))
	assert.Nil(t, p.ExpiresAtFor(now, models.StatusConfirmed))
	assert.NotNil(t, p.ExpiresAtFor(now, models.StatusSubmitted))
}

func TestIsExpiredHold(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	t.Run("provisional with lapsed deadline is expired", func(t *testing.T) {
		for _, st := range models.ProvisionalStatuses {
			assert.True(t, IsExpiredHold(st, &past, now), st)
		}
	})

	t.Run("deadline equal to now is still held", func(t *testing.T) {
		assert.False(t, IsExpiredHold(models.StatusStarted, &now, now))
	})

	t.Run("future deadline is held", func(t *testing.T) {
		assert.False(t, IsExpiredHold(models.StatusSubmitted, &future, now))
	})

	t.Run("final statuses never expire", func(t *testing.T) {
		assert.False(t, IsExpiredHold(models.StatusConfirmed, &past, now))
		assert.False(t, IsExpiredHold(models.StatusCancelled, &past, now))
	})

	t.Run("missing deadline never expires", func(t *testing.T) {
		assert.False(t, IsExpiredHold(models.StatusStarted, nil, now))
	})
}

func TestIsLapsed(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	t.Run("swept holds keep their deadline and read as lapsed", func(t *testing.T) {
		assert.True(t, IsLapsed(&models.Registration{Status: models.StatusCancelled, ExpiresAt: &past}, now))
	})

	t.Run("cancellations without a deadline are not lapsed", func(t *testing.T) {
		assert.False(t, IsLapsed(&models.Registration{Status: models.StatusCancelled}, now))
		assert.False(t, IsLapsed(&models.Registration{Status: models.StatusCancelled, ExpiresAt: &future}, now))
	})

	t.Run("provisional holds follow IsExpired", func(t *testing.T) {
		assert.True(t, IsLapsed(&models.Registration{Status: models.StatusStarted, ExpiresAt: &past}, now))
		assert.False(t, IsLapsed(&models.Registration{Status: models.StatusSubmitted, ExpiresAt: &future}, now))
	})

	t.Run("confirmed registrations never lapse", func(t *testing.T) {
		assert.False(t, IsLapsed(&models.Registration{Status: models.StatusConfirmed, ExpiresAt: &past}, now))
	})
}

func TestLoadPolicy(t *testing.T) {
	t.Run("empty path keeps defaults", func(t *testing.T) {
		p, err := LoadPolicy("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPolicy(), p)
	})

	t.Run("file overrides only named statuses", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "holds.yaml")
		require.NoError(t, os.WriteFile(path, []byte("started: 10m\npayment_pending: 2h\n"), 0o600))

		p, err := LoadPolicy(path)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Minute, p.Started)
		assert.Equal(t, DefaultSubmittedTTL, p.Submitted)
		assert.Equal(t, 2*time.Hour, p.PaymentPending)
	})

	t.Run("rejects non-positive durations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "holds.yaml")
		require.NoError(t, os.WriteFile(path, []byte("started: -5m\n"), 0o600))

		_, err := LoadPolicy(path)
		require.Error(t, err)
	})
}
