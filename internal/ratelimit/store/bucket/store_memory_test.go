package bucket

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"raceday/internal/ratelimit/models"
)

const (
	testLimit  = 10
	testWindow = time.Minute
)

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.store = NewInMemoryBucketStore()
	s.now = time.Date(2026, 4, 12, 8, 30, 0, 0, time.UTC)
	s.store.now = func() time.Time { return s.now }
	s.ctx = context.Background()
}

func (s *InMemoryBucketStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "test:allow:first", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(testLimit-1, result.Remaining)
		s.Equal(s.now.Add(testWindow), result.ResetAt)
	})

	s.Run("requests up to limit allowed", func() {
		var result *models.RateLimitResult
		var err error
		for range testLimit {
			result, err = s.store.Allow(s.ctx, "test:allow:limit", testLimit, testWindow)
		}
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(0, result.Remaining)
	})

	s.Run("request over limit denied with retry hint", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "test:allow:over", testLimit, testWindow)
			require.NoError(s.T(), err)
		}
		result, err := s.store.Allow(s.ctx, "test:allow:over", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(testWindow, result.RetryAfter)
	})

	s.Run("window slides", func() {
		key := "test:allow:slide"
		for range testLimit {
			_, err := s.store.Allow(s.ctx, key, testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.now = s.now.Add(testWindow + time.Second)

		result, err := s.store.Allow(s.ctx, key, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit-1, result.Remaining)
	})
}

func (s *InMemoryBucketStoreSuite) TestAllowN() {
	s.Run("cost of 5 consumes 5 slots", func() {
		result, err := s.store.AllowN(s.ctx, "test:allown:five", 5, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(5, result.Remaining)
	})

	s.Run("cost greater than remaining denied", func() {
		first, err := s.store.AllowN(s.ctx, "test:allown:deny", 7, testLimit, testWindow)
		s.Require().NoError(err)
		s.Require().True(first.Allowed)

		result, err := s.store.AllowN(s.ctx, "test:allown:deny", 4, testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)

		count, err := s.store.GetCurrentCount(s.ctx, "test:allown:deny")
		s.Require().NoError(err)
		s.Equal(7, count)
	})
}

func (s *InMemoryBucketStoreSuite) TestReset() {
	_, err := s.store.AllowN(s.ctx, "test:reset", 5, testLimit, testWindow)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(s.ctx, "test:reset"))

	result, err := s.store.AllowN(s.ctx, "test:reset", testLimit, testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(0, result.Remaining)
}

func (s *InMemoryBucketStoreSuite) TestIdleKeysArePruned() {
	s.Run("keys whose window elapsed are dropped on the next sweep", func() {
		for i := range 50 {
			_, err := s.store.Allow(s.ctx, fmt.Sprintf("test:prune:caller:%d", i), testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.Len(s.store.buckets, 50)

		s.now = s.now.Add(testWindow + time.Second)
		_, err := s.store.Allow(s.ctx, "test:prune:fresh", testLimit, testWindow)
		s.Require().NoError(err)
		s.Len(s.store.buckets, 1)
		s.Contains(s.store.buckets, "test:prune:fresh")
	})

	s.Run("keys still inside their window survive", func() {
		_, err := s.store.Allow(s.ctx, "test:prune:long", testLimit, time.Hour)
		s.Require().NoError(err)

		s.now = s.now.Add(testWindow + time.Second)
		_, err = s.store.Allow(s.ctx, "test:prune:other", testLimit, testWindow)
		s.Require().NoError(err)

		s.Contains(s.store.buckets, "test:prune:long")
		count, err := s.store.GetCurrentCount(s.ctx, "test:prune:long")
		s.Require().NoError(err)
		s.Equal(1, count)
	})

	s.Run("sweeps run at most once per interval", func() {
		_, err := s.store.Allow(s.ctx, "test:prune:short", testLimit, time.Second)
		s.Require().NoError(err)

		s.now = s.now.Add(2 * time.Second)
		_, err = s.store.Allow(s.ctx, "test:prune:other", testLimit, testWindow)
		s.Require().NoError(err)
		s.Contains(s.store.buckets, "test:prune:short")

		s.now = s.now.Add(defaultPruneEvery)
		_, err = s.store.Allow(s.ctx, "test:prune:other", testLimit, testWindow)
		s.Require().NoError(err)
		s.NotContains(s.store.buckets, "test:prune:short")
	})

	s.Run("reading an empty window drops the key", func() {
		_, err := s.store.Allow(s.ctx, "test:prune:read", testLimit, time.Second)
		s.Require().NoError(err)
		s.now = s.now.Add(2 * time.Second)

		count, err := s.store.GetCurrentCount(s.ctx, "test:prune:read")
		s.Require().NoError(err)
		s.Zero(count)
		s.NotContains(s.store.buckets, "test:prune:read")
	})
}

func (s *InMemoryBucketStoreSuite) TestConcurrent() {
	limit := 100
	key := "test:concurrent"
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for range 200 {
		wg.Go(func() {
			result, err := s.store.Allow(s.ctx, key, limit, testWindow)
			if err != nil || !result.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		})
	}
	wg.Wait()
	s.Equal(limit, allowed)
}

func TestSanitizedKeysDoNotCollide(t *testing.T) {
	require.NotEqual(t, models.Key("invite_claim", "user:a", "b"), models.Key("invite_claim", "user", "a:b"))
}
