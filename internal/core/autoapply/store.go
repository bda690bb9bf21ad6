package autoapply

import (
	"context"
	"fmt"
	"time"

	"autoapply/internal/core/jobs"
	rds "autoapply/internal/platform/redis"
)

// RedisStore keeps user profiles, auto-apply configs, and submitted
// applications in Redis. The primary datastore lives upstream; this layer
// holds the engine's working copy.
type RedisStore struct {
	redis *rds.Service
}

func NewRedisStore(r *rds.Service) *RedisStore { return &RedisStore{redis: r} }

const storeTTL = 0 // no expiry, records are owned data

func configKey(userID string) string { return "autoapply:config:" + userID }
func userKey(userID string) string   { return "autoapply:user:" + userID }

func (s *RedisStore) LoadConfig(ctx context.Context, userID string) (*jobs.AutoApplyConfig, error) {
	var cfg jobs.AutoApplyConfig
	if err := s.redis.CacheGet(ctx, configKey(userID), &cfg); err != nil {
		return nil, fmt.Errorf("no auto-apply config for user %s", userID)
	}
	return &cfg, nil
}

func (s *RedisStore) SaveConfig(ctx context.Context, cfg *jobs.AutoApplyConfig) error {
	return s.redis.CacheSet(ctx, configKey(cfg.UserID), cfg, storeTTL)
}

func (s *RedisStore) LoadUser(ctx context.Context, userID string) (*jobs.User, error) {
	var user jobs.User
	if err := s.redis.CacheGet(ctx, userKey(userID), &user); err != nil {
		return nil, fmt.Errorf("no profile for user %s", userID)
	}
	return &user, nil
}

func (s *RedisStore) RecordApplication(ctx context.Context, app jobs.Application) error {
	key := fmt.Sprintf("autoapply:application:%s:%s:%s", app.UserID, app.Platform, app.JobID)
	if err := s.redis.CacheSet(ctx, key, app, storeTTL); err != nil {
		return err
	}
	// Index by day so upstream sync can page through a day's submissions.
	day := time.Now().Format("2006-01-02")
	return s.redis.Client().SAdd(ctx, "autoapply:applications:"+day, key).Err()
}
