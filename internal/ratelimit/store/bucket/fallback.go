package bucket

import (
	"context"
	"log/slog"
	"time"

	"raceday/internal/ratelimit/models"
)

// Store is the sliding-window contract both bucket stores satisfy.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error)
	Reset(ctx context.Context, key string) error
}

// FallbackBucketStore answers from an in-memory window while the primary store errors,
// so an unavailable Redis degrades limits to per-instance instead of disabling them.
type FallbackBucketStore struct {
	primary  Store
	fallback *InMemoryBucketStore
	logger   *slog.Logger
}

// NewFallbackBucketStore wraps primary with an in-memory fallback.
func NewFallbackBucketStore(primary Store, logger *slog.Logger) *FallbackBucketStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackBucketStore{primary: primary, fallback: NewInMemoryBucketStore(), logger: logger}
}

func (f *FallbackBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return f.AllowN(ctx, key, 1, limit, window)
}

func (f *FallbackBucketStore) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error) {
	res, err := f.primary.AllowN(ctx, key, cost, limit, window)
	if err == nil {
		return res, nil
	}
	f.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback",
		"key", key,
		"error", err,
	)
	return f.fallback.AllowN(ctx, key, cost, limit, window)
}

func (f *FallbackBucketStore) Reset(ctx context.Context, key string) error {
	_ = f.fallback.Reset(ctx, key)
	return f.primary.Reset(ctx, key)
}
