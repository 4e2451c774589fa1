// Package revalidate tells cache layers which tags went stale.
package revalidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"raceday/internal/platform/metrics"
)

// Channel carries stale tags to subscribers, one tag per message.
const Channel = "raceday:revalidate"

const versionPrefix = "raceday:tag:"

// RedisRevalidator bumps a version counter per tag and publishes the tag. Readers may
// key cached entries by tag version or invalidate on the published message.
type RedisRevalidator struct {
	client  redis.UniversalClient
	metrics *metrics.Metrics
}

// NewRedisRevalidator builds a revalidator; m may be nil.
func NewRedisRevalidator(client redis.UniversalClient, m *metrics.Metrics) *RedisRevalidator {
	return &RedisRevalidator{client: client, metrics: m}
}

func (r *RedisRevalidator) RevalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, tag := range tags {
			p.Incr(ctx, versionPrefix+tag)
			p.Publish(ctx, Channel, tag)
		}
		return nil
	})
	if err != nil {
		r.metrics.IncrementRevalidation("error")
		return fmt.Errorf("revalidate %d tags: %w", len(tags), err)
	}
	r.metrics.IncrementRevalidation("ok")
	return nil
}

// Version returns the current version of tag, 0 when it was never bumped.
func (r *RedisRevalidator) Version(ctx context.Context, tag string) (int64, error) {
	v, err := r.client.Get(ctx, versionPrefix+tag).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("tag version %s: %w", tag, err)
	}
	return v, nil
}

// Noop discards revalidations. Used when no cache is configured.
type Noop struct{}

func (Noop) RevalidateTags(context.Context, ...string) error { return nil }
