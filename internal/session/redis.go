package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viatel/triagebot/internal/models"
)

const redisKeyPrefix = "triagebot:session:"

// RedisStore implements Store on top of Redis. Sessions are JSON-encoded and
// expire after the configured TTL, which also bounds the growth of abandoned
// conversations.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// GetOrCreate implements Store.
func (s *RedisStore) GetOrCreate(ctx context.Context, key string) (*models.Session, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		now := time.Now().UTC()
		sess := &models.Session{
			Answers:   make(map[models.StepID]string),
			CreatedAt: now,
			UpdatedAt: now,
		}
		slog.Debug("RedisStore session created", "key", key)
		return sess, nil
	}
	if err != nil {
		slog.Error("RedisStore GetOrCreate failed", "error", err, "key", key)
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		slog.Error("RedisStore session decode failed", "error", err, "key", key)
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Answers == nil {
		sess.Answers = make(map[models.StepID]string)
	}
	return &sess, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, val, s.ttl).Err(); err != nil {
		slog.Error("RedisStore Save failed", "error", err, "key", key)
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		slog.Error("RedisStore Clear failed", "error", err, "key", key)
		return fmt.Errorf("redis delete session: %w", err)
	}
	slog.Debug("RedisStore session cleared", "key", key)
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
