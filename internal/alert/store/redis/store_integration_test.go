//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bitacora/internal/alert"
	redisstore "bitacora/internal/alert/store/redis"
	"bitacora/pkg/testutil/containers"
)

// =============================================================================
// Redis Rule Store Integration Test Suite
// =============================================================================

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *redisstore.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = redisstore.New(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestSaveAndFindAll() {
	ctx := context.Background()

	s.Run("empty store loads no rules", func() {
		rules, err := s.store.FindAll(ctx)
		s.Require().NoError(err)
		s.Empty(rules)
	})

	s.Run("saved rules round-trip", func() {
		rule := alert.Rule{
			ID:            uuid.New(),
			Name:          "burst of failed logins",
			Threshold:     5,
			WindowMinutes: 15,
			Active:        true,
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
		}
		s.Require().NoError(s.store.Save(ctx, rule))

		rules, err := s.store.FindAll(ctx)
		s.Require().NoError(err)
		s.Require().Len(rules, 1)
		s.Equal(rule.ID, rules[0].ID)
		s.Equal(rule.Name, rules[0].Name)
		s.Equal(rule.Threshold, rules[0].Threshold)
	})

	s.Run("re-saving a rule overwrites in place", func() {
		rule := alert.Rule{ID: uuid.New(), Name: "before", Threshold: 1, Active: true}
		s.Require().NoError(s.store.Save(ctx, rule))

		rule.Name = "after"
		s.Require().NoError(s.store.Save(ctx, rule))

		rules, err := s.store.FindAll(ctx)
		s.Require().NoError(err)
		names := make(map[string]bool)
		for _, r := range rules {
			names[r.Name] = true
		}
		s.True(names["after"])
		s.False(names["before"])
	})
}
