//go:build integration

package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"raceday/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
	ctx   context.Context
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) key() string {
	return "test:" + uuid.NewString()
}

func (s *RedisBucketStoreSuite) TestAllowUpToLimit() {
	key := s.key()
	for i := range 3 {
		res, err := s.store.Allow(s.ctx, key, 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(3-(i+1), res.Remaining)
	}

	res, err := s.store.Allow(s.ctx, key, 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)
	s.LessOrEqual(res.RetryAfter, time.Minute)
}

func (s *RedisBucketStoreSuite) TestWindowSlides() {
	key := s.key()
	base := time.Now()
	s.store.now = func() time.Time { return base }
	for range 2 {
		_, err := s.store.Allow(s.ctx, key, 2, time.Minute)
		s.Require().NoError(err)
	}

	s.store.now = func() time.Time { return base.Add(61 * time.Second) }
	res, err := s.store.Allow(s.ctx, key, 2, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(1, res.Remaining)
}

func (s *RedisBucketStoreSuite) TestReset() {
	key := s.key()
	_, err := s.store.AllowN(s.ctx, key, 5, 5, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(s.ctx, key))

	res, err := s.store.Allow(s.ctx, key, 5, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisBucketStoreSuite) TestConcurrentInstancesShareWindow() {
	key := s.key()
	other := NewRedisBucketStore(s.redis.Client)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := range 40 {
		st := s.store
		if i%2 == 1 {
			st = other
		}
		wg.Go(func() {
			res, err := st.Allow(s.ctx, key, 10, time.Minute)
			if err != nil || !res.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		})
	}
	wg.Wait()
	s.Equal(10, allowed)
}

func (s *RedisBucketStoreSuite) TestWindowKeyExpiresWithTheWindow() {
	key := s.key()
	_, err := s.store.Allow(s.ctx, key, 3, 30*time.Second)
	s.Require().NoError(err)

	keys, err := s.redis.Keys(s.ctx, "ratelimit:")
	s.Require().NoError(err)
	s.Equal([]string{defaultKeyPrefix + key}, keys)

	ttl, err := s.redis.Client.PTTL(s.ctx, keys[0]).Result()
	s.Require().NoError(err)
	s.Positive(ttl)
	s.LessOrEqual(ttl, 30*time.Second)
}
