package bucket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raceday/internal/ratelimit/models"
)

type failingStore struct{ calls int }

func (f *failingStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return f.AllowN(ctx, key, 1, limit, window)
}

func (f *failingStore) AllowN(context.Context, string, int, int, time.Duration) (*models.RateLimitResult, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func (f *failingStore) Reset(context.Context, string) error { return nil }

func TestFallbackBucketStore(t *testing.T) {
	primary := &failingStore{}
	store := NewFallbackBucketStore(primary, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for range 2 {
		res, err := store.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := store.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "fallback still enforces the limit")
	assert.Equal(t, 3, primary.calls)
}
