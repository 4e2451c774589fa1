//go:build integration

package revalidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"raceday/pkg/testutil/containers"
)

type RevalidateSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
}

func TestRevalidateSuite(t *testing.T) {
	suite.Run(t, new(RevalidateSuite))
}

func (s *RevalidateSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RevalidateSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RevalidateSuite) TestBumpsAndPublishes() {
	sub := s.redis.Client.Subscribe(s.ctx, Channel)
	defer sub.Close()
	_, err := sub.Receive(s.ctx)
	s.Require().NoError(err)

	r := NewRedisRevalidator(s.redis.Client, nil)
	s.Require().NoError(r.RevalidateTags(s.ctx, "edition:1:detail", "public:events"))
	s.Require().NoError(r.RevalidateTags(s.ctx, "public:events"))

	v, err := r.Version(s.ctx, "public:events")
	s.Require().NoError(err)
	s.Equal(int64(2), v)
	v, err = r.Version(s.ctx, "never")
	s.Require().NoError(err)
	s.Zero(v)

	ch := sub.Channel()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case msg := <-ch:
			got = append(got, msg.Payload)
		case <-timeout:
			s.FailNow("timed out waiting for revalidation messages", "got %v", got)
		}
	}
	s.Equal([]string{"edition:1:detail", "public:events", "public:events"}, got)
}

func (s *RevalidateSuite) TestVersionsLiveUnderTheTagNamespace() {
	r := NewRedisRevalidator(s.redis.Client, nil)
	s.Require().NoError(r.RevalidateTags(s.ctx, "edition:7:detail", "public:events"))

	keys, err := s.redis.Keys(s.ctx, "tag:")
	s.Require().NoError(err)
	s.Equal([]string{versionPrefix + "edition:7:detail", versionPrefix + "public:events"}, keys)
}
